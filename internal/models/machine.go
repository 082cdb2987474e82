package models

// Machine is a registry entry: the baseline snapshot an analysis machine is
// reverted to before every run.
type Machine struct {
	Label       string `json:"label"`
	Snapshot    string `json:"snapshot"`
	Description string `json:"description,omitempty"`
}

// MachineStatus pairs a registry entry with the power state read from the host.
type MachineStatus struct {
	Machine
	PowerState string
	Registered bool
}
