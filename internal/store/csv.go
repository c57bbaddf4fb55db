package store

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"

	"pattern-trader/internal/errors"
	"pattern-trader/internal/models"
)

// ReadTicks decodes a timestamp,open,high,low,close,volume CSV stream.
func ReadTicks(r io.Reader, symbol string) ([]models.Tick, error) {
	var ticks []models.Tick
	if err := gocsv.Unmarshal(r, &ticks); err != nil {
		return nil, errors.NewDataError("ticks", symbol, "decoding csv", err)
	}
	if len(ticks) == 0 {
		return nil, errors.NewDataError("ticks", symbol, "no rows", errors.ErrDataNotFound)
	}
	for i := range ticks {
		t := &ticks[i]
		if t.High < t.Low {
			return nil, errors.NewDataError("ticks", symbol, "high below low", errors.NewValidationError("row", i+1, "high < low"))
		}
		t.Symbol = symbol
	}
	return ticks, nil
}

// LoadTicksFile reads a tick CSV file. The symbol is the file name without
// extension.
func LoadTicksFile(path string) (string, []models.Tick, error) {
	symbol := SymbolFromPath(path)
	f, err := os.Open(path)
	if err != nil {
		return symbol, nil, errors.NewDataError("ticks", symbol, "opening file", err)
	}
	defer f.Close()

	ticks, err := ReadTicks(f, symbol)
	return symbol, ticks, err
}

// WriteTicks encodes ticks in the format read by ReadTicks.
func WriteTicks(w io.Writer, ticks []models.Tick) error {
	return gocsv.Marshal(ticks, w)
}

// SymbolFromPath derives an upper-case symbol from a file path.
func SymbolFromPath(path string) string {
	base := filepath.Base(path)
	return strings.ToUpper(strings.TrimSuffix(base, filepath.Ext(base)))
}
