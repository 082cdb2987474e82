package config

import "time"

//go:generate go run github.com/ecordell/optgen -output zz_generated.options.go . Configuration

type Configuration struct {
	Server  Server  `debugmap:"visible"`
	VSphere VSphere `debugmap:"visible"`
	Agent   Agent   `debugmap:"visible"`
	Auth    Auth    `debugmap:"visible"`
	Log     Log     `debugmap:"visible"`
}

type Server struct {
	HTTPPort   int    `default:"8000"`
	ServerMode string `default:"dev"`
}

// VSphere holds the connection parameters of the host running the analysis
// machines.
type VSphere struct {
	Host     string
	Port     int `default:"443"`
	Username string
	Password string `debugmap:"sensitive"`
	// Insecure skips TLS verification of the host certificate.
	Insecure bool `default:"false"`
	// PrivilegeUser, when set, is checked for the required privileges on
	// every registered machine at startup.
	PrivilegeUser string
}

type Agent struct {
	// MachinesFile is the YAML registry of analysis machines.
	MachinesFile string
	DataFolder   string `default:"/var/lib/vsphere-machinery"`
	// DumpFolder confines the memory images requested over the API.
	DumpFolder  string        `default:"/var/lib/vsphere-machinery/dumps"`
	NumWorkers  int           `default:"3"`
	TaskTimeout time.Duration `default:"5m"`
}

type Auth struct {
	Enabled bool `default:"false"`
	// JWTFilePath holds the HS256 secret bearer tokens are signed with.
	JWTFilePath string
}

type Log struct {
	Level  string `default:"info"`
	Format string `default:"console"`
}
