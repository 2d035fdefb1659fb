package export

import (
	"io"
	"os"

	"codeberg.org/mutker/encoderctl/internal/buffer"
	"codeberg.org/mutker/encoderctl/internal/errors"
	"github.com/gocarina/gocsv"
)

// WriteCSV serializes a sample snapshot as CSV. maxRows caps the output
// to the most recent rows, mirroring the bounded table the dashboard
// shows; 0 or negative means no cap.
func WriteCSV(w io.Writer, samples []buffer.Sample, maxRows int) error {
	errFactory := errors.New()

	if len(samples) == 0 {
		return errFactory.New(errors.ErrNoSamples)
	}

	if maxRows > 0 && len(samples) > maxRows {
		samples = samples[len(samples)-maxRows:]
	}

	if err := gocsv.Marshal(&samples, w); err != nil {
		return errFactory.Wrap(errors.ErrExportFailed, err)
	}

	return nil
}

// WriteCSVFile writes a sample snapshot to the given path.
func WriteCSVFile(path string, samples []buffer.Sample, maxRows int) error {
	errFactory := errors.New()

	f, err := os.Create(path)
	if err != nil {
		return errFactory.Wrap(errors.ErrExportFailed, err)
	}
	defer f.Close()

	return WriteCSV(f, samples, maxRows)
}

// WriteCompositeCSV serializes composite grammar rows as CSV.
func WriteCompositeCSV(w io.Writer, rows []buffer.CompositeSample, maxRows int) error {
	errFactory := errors.New()

	if len(rows) == 0 {
		return errFactory.New(errors.ErrNoSamples)
	}

	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[len(rows)-maxRows:]
	}

	if err := gocsv.Marshal(&rows, w); err != nil {
		return errFactory.Wrap(errors.ErrExportFailed, err)
	}

	return nil
}
