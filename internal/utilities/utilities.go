package utilities

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RawLog guarda líneas en archivos diarios <dir>/<prefix>_<yyyymmdd>.log.
// Un dir vacío lo deshabilita.
type RawLog struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

func NewRawLog(dir string) *RawLog {
	return &RawLog{dir: dir, now: time.Now}
}

func (l *RawLog) Enabled() bool { return l != nil && l.dir != "" }

// Write agrega una línea con hora al log del día.
func (l *RawLog) Write(prefix, message string) error {
	if !l.Enabled() {
		return nil
	}
	now := l.now()
	filename := filepath.Join(l.dir, prefix+"_"+now.Format("20060102")+".log")

	l.mu.Lock()
	defer l.mu.Unlock()

	// Crear carpeta si no existe
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("rawlog: mkdir %s: %w", l.dir, err)
	}
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("rawlog: open %s: %w", filename, err)
	}
	defer f.Close()

	if _, err := f.WriteString(now.Format("15:04:05") + " - " + message + "\n"); err != nil {
		return fmt.Errorf("rawlog: write %s: %w", filename, err)
	}
	return nil
}
