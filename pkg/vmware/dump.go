package vmware

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"regexp"

	"github.com/vmware/govmomi/vim25/types"
	"go.uber.org/zap"

	srvErrors "github.com/kubev2v/vsphere-machinery/pkg/errors"
)

const (
	downloadChunkSize = 16 * 1024

	fileTypeSnapshotMemory = "snapshotMemory"
	fileTypeSuspendMemory  = "suspendMemory"
	fileTypeSnapshotData   = "snapshotData"
)

var fileSpecPattern = regexp.MustCompile(`^\[([^\]]*)\] (.*)$`)

// FileSpec locates a file on a datastore.
type FileSpec struct {
	Datastore string
	Path      string
}

// ParseFileSpec parses a "[datastore] path/to/file" specifier.
func ParseFileSpec(spec string) (FileSpec, error) {
	m := fileSpecPattern.FindStringSubmatch(spec)
	if m == nil {
		return FileSpec{}, srvErrors.NewFormatError(spec)
	}
	return FileSpec{Datastore: m[1], Path: m[2]}, nil
}

// ResolveMemoryFile returns the specifier of the file holding the memory
// image of a snapshot. Memory files are preferred; the snapshot data file is
// used when the host keeps memory inside it.
func ResolveMemoryFile(layout *types.VirtualMachineFileLayoutEx, snapshot types.ManagedObjectReference) (string, error) {
	if layout == nil {
		return "", srvErrors.NewResourceNotFoundError("memory file", snapshot.Value)
	}

	var memoryKey, dataKey int32 = -1, -1
	for _, s := range layout.Snapshot {
		if s.Key == snapshot {
			memoryKey, dataKey = s.MemoryKey, s.DataKey
			break
		}
	}

	for _, f := range layout.File {
		if f.Key == memoryKey && (f.Type == fileTypeSnapshotMemory || f.Type == fileTypeSuspendMemory) {
			return f.Name, nil
		}
	}

	for _, f := range layout.File {
		if f.Key == dataKey && f.Type == fileTypeSnapshotData {
			return f.Name, nil
		}
	}

	return "", srvErrors.NewResourceNotFoundError("memory file", snapshot.Value)
}

// DownloadURL builds the datastore file URL of the host's /folder endpoint.
func DownloadURL(params ConnectionParameters, spec FileSpec, dcPath string) string {
	u := url.URL{
		Scheme:   "https",
		Host:     fmt.Sprintf("%s:%d", params.Host, params.Port),
		Path:     "/folder/" + spec.Path,
		RawQuery: "dsName=" + url.QueryEscape(spec.Datastore) + "&dcPath=" + url.QueryEscape(dcPath),
	}
	return u.String()
}

// Download streams the file at rawURL into path, truncating any existing
// file. A partially written file is left in place on failure.
func Download(ctx context.Context, conn Conn, rawURL, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, srvErrors.NewTransferError(rawURL, 0, err)
	}
	if cookie := conn.Cookie(); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := conn.HTTPClient().Do(req)
	if err != nil {
		return 0, srvErrors.NewTransferError(rawURL, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, srvErrors.NewTransferError(rawURL, resp.StatusCode, nil)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, srvErrors.NewTransferError(rawURL, 0, err)
	}
	defer func() { _ = f.Close() }()

	var written int64
	buf := make([]byte, downloadChunkSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			w, werr := f.Write(buf[:n])
			written += int64(w)
			if werr != nil {
				return written, srvErrors.NewTransferError(rawURL, 0, werr)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, srvErrors.NewTransferError(rawURL, 0, rerr)
		}
	}

	if err := f.Close(); err != nil {
		return written, srvErrors.NewTransferError(rawURL, 0, err)
	}

	return written, nil
}

// MemoryDumper extracts the memory image of a running machine through a
// transient snapshot.
type MemoryDumper struct {
	lifecycle *SnapshotLifecycle
	// snapshotName generates the transient snapshot name.
	snapshotName func() string
}

func NewMemoryDumper(lifecycle *SnapshotLifecycle) *MemoryDumper {
	return &MemoryDumper{
		lifecycle: lifecycle,
		snapshotName: func() string {
			return fmt.Sprintf("machinery_memdump_%06d", rand.IntN(1_000_000))
		},
	}
}

// Dump writes the memory image of vm to path and returns the number of bytes
// written.
//
// The transient snapshot is removed only after a successful download. When
// the download fails the snapshot stays on the host.
func (d *MemoryDumper) Dump(ctx context.Context, conn Conn, vm *Machine, path string) (int64, error) {
	name := d.snapshotName()

	if err := d.lifecycle.Create(ctx, conn, vm, name); err != nil {
		return 0, err
	}

	snapshot, err := d.lifecycle.find(ctx, conn, vm, name)
	if err != nil {
		return 0, err
	}

	layout, err := conn.FileLayout(ctx, vm)
	if err != nil {
		return 0, fmt.Errorf("failed to read file layout of %s: %w", vm.Label(), err)
	}

	filespec, err := ResolveMemoryFile(layout, snapshot.Ref)
	if err != nil {
		return 0, fmt.Errorf("could not find memory snapshot file of %s: %w", vm.Label(), err)
	}

	spec, err := ParseFileSpec(filespec)
	if err != nil {
		return 0, err
	}

	dcPath := vm.DatacenterPath()
	if dcPath == "" {
		dcPath = DefaultDatacenterPath
	}

	zap.S().Named("vmware").Infow("downloading memory dump", "machine", vm.Label(), "file", filespec, "path", path)

	written, err := Download(ctx, conn, DownloadURL(conn.Params(), spec, dcPath), path)
	if err != nil {
		return written, fmt.Errorf("error downloading memory dump %s: %w", filespec, err)
	}

	if err := d.lifecycle.Delete(ctx, conn, vm, name); err != nil {
		return written, err
	}

	return written, nil
}
