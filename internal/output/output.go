package output

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	appLog "calexport/internal/log"
	"calexport/internal/model"
)

// Month identifies one output file.
type Month struct {
	Year  int
	Month time.Month
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Path returns the file of m below dir: <dir>/<year>/<month>.dat, month not
// zero padded.
func (m Month) Path(dir string) string {
	return filepath.Join(dir, strconv.Itoa(m.Year), strconv.Itoa(int(m.Month))+".dat")
}

// Result summarizes a Write.
type Result struct {
	Written []Month
	Skipped []Month
	Lines   int
}

// FormatLine renders one event as "MM/DD HH:MM,<0|1>,<calendar id>,<title>".
// Titles are written as is; a comma in a title is not escaped.
func FormatLine(ev model.Event) string {
	allDay := 0
	if ev.AllDay {
		allDay = 1
	}
	return fmt.Sprintf("%02d/%02d %02d:%02d,%d,%d,%s\n",
		int(ev.Start.Month), ev.Start.Day, ev.Start.Hour, ev.Start.Minute,
		allDay, ev.CalendarID, ev.Title)
}

// Write groups events by the (year, month) of their start and writes one
// file per month. events are expected in output order; each month's lines
// keep that order.
//
// A month is buffered completely and committed with a rename, so a file is
// either fully written or left untouched. A month that cannot be committed
// is logged and skipped; the remaining months are still written.
func Write(dir string, events []model.Event) (Result, error) {
	var res Result
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return res, fmt.Errorf("failed to create output directory: %w", err)
	}

	var (
		order  []Month
		groups = make(map[Month]*bytes.Buffer)
	)
	for _, ev := range events {
		m := Month{Year: ev.Start.Year, Month: ev.Start.Month}
		buf, ok := groups[m]
		if !ok {
			buf = &bytes.Buffer{}
			groups[m] = buf
			order = append(order, m)
		}
		buf.WriteString(FormatLine(ev))
	}

	for _, m := range order {
		buf := groups[m]
		if err := commit(m.Path(dir), buf.Bytes()); err != nil {
			appLog.Error("month skipped: cannot write output", err, "month", m.String(), "path", m.Path(dir))
			res.Skipped = append(res.Skipped, m)
			continue
		}
		res.Written = append(res.Written, m)
		res.Lines += bytes.Count(buf.Bytes(), []byte{'\n'})
		// Release the buffer before the next month is committed.
		delete(groups, m)
	}

	appLog.Info("output written", "dir", dir, "months", len(res.Written), "skipped", len(res.Skipped), "lines", res.Lines)
	return res, nil
}

// commit atomically replaces path with data via a temp file + rename in the
// same directory.
func commit(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calexport-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	// Removing after a successful rename is a no-op.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
