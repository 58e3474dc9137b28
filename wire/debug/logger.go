package debug

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/user/motionblinds-ble/util"
)

// File names under <data dir>/<device>/debug
const (
	CommandsFile      = "commands.jsonl"
	NotificationsFile = "notifications.jsonl"
	TransitionsFile   = "transitions.jsonl"
)

// DebugLogger writes one protojson record per line describing the traffic
// of a single blind. The files are write-only diagnostics.
type DebugLogger struct {
	address  string
	debugDir string
	enabled  bool
	mu       sync.Mutex
	now      func() time.Time
}

// NewDebugLogger creates a debug logger for the blind at address. A disabled
// logger accepts every call and writes nothing.
func NewDebugLogger(address string, enabled bool) *DebugLogger {
	if !enabled {
		return &DebugLogger{enabled: false}
	}

	debugDir := filepath.Join(util.GetDeviceCacheDir(address), "debug")
	os.MkdirAll(debugDir, 0755)

	return &DebugLogger{
		address:  address,
		debugDir: debugDir,
		enabled:  true,
		now:      time.Now,
	}
}

// Dir returns the directory records are written to ("" when disabled)
func (d *DebugLogger) Dir() string {
	if d == nil {
		return ""
	}
	return d.debugDir
}

// LogCommand records an outgoing command: its opcode, the raw string and the
// encrypted bytes written to the blind.
func (d *DebugLogger) LogCommand(opcode, raw string, payload []byte) {
	d.append(CommandsFile, map[string]interface{}{
		"direction":   "tx",
		"opcode":      opcode,
		"raw":         raw,
		"payload_len": len(payload),
		"payload_hex": hex.EncodeToString(payload),
	})
}

// LogNotification records an incoming notification after decryption
func (d *DebugLogger) LogNotification(handle uint16, payload []byte, decoded string) {
	d.append(NotificationsFile, map[string]interface{}{
		"direction":   "rx",
		"handle":      fmt.Sprintf("0x%04X", handle),
		"payload_hex": hex.EncodeToString(payload),
		"decoded":     decoded,
	})
}

// LogTransition records a handshake state change and the event causing it
func (d *DebugLogger) LogTransition(from, to, event string) {
	d.append(TransitionsFile, map[string]interface{}{
		"from":  from,
		"to":    to,
		"event": event,
	})
}

func (d *DebugLogger) append(filename string, fields map[string]interface{}) {
	if d == nil || !d.enabled {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	fields["timestamp"] = d.now().Format(time.RFC3339Nano)
	fields["address"] = d.address

	record, err := structpb.NewStruct(fields)
	if err != nil {
		return
	}
	line, err := protojson.Marshal(record)
	if err != nil {
		return
	}

	f, err := os.OpenFile(filepath.Join(d.debugDir, filename), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	f.Write(line)
	f.Write([]byte("\n"))
}
