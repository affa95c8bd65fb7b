package dataset

import (
	"errors"
	"fmt"
	"time"

	"github.com/irfndi/transit-flow/internal/models"
)

// DefaultTrainRatio is the share of rows placed in the training partition
const DefaultTrainRatio = 0.9

var (
	ErrEmpty            = errors.New("dataset has no rows")
	ErrUnordered        = errors.New("records must be strictly increasing by day")
	ErrInvalidRatio     = errors.New("train ratio must be in (0, 1)")
	ErrInsufficientRows = errors.New("not enough rows")
)

// Dataset is an encoded, chronologically ordered feature matrix
type Dataset struct {
	Schema Schema
	Days   []time.Time
	X      [][]float64
	Y      []float64
}

// Assemble encodes records with a vocabulary captured from records themselves
func Assemble(records []models.DailyRecord) (*Dataset, error) {
	return AssembleWithSchema(records, NewSchema(records))
}

// AssembleWithSchema encodes records with an existing schema
func AssembleWithSchema(records []models.DailyRecord, schema Schema) (*Dataset, error) {
	if len(records) == 0 {
		return nil, ErrEmpty
	}

	ds := &Dataset{
		Schema: schema,
		Days:   make([]time.Time, len(records)),
		X:      make([][]float64, len(records)),
		Y:      make([]float64, len(records)),
	}
	for i, rec := range records {
		if i > 0 && !rec.Day.After(records[i-1].Day) {
			return nil, fmt.Errorf("%w: %s follows %s", ErrUnordered,
				rec.Day.Format("2006-01-02"), records[i-1].Day.Format("2006-01-02"))
		}
		x, err := schema.Encode(rec)
		if err != nil {
			return nil, err
		}
		ds.Days[i] = rec.Day
		ds.X[i] = x
		ds.Y[i] = float64(rec.Y)
	}
	return ds, nil
}

// Len returns the number of rows
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Y)
}

// Slice returns rows [from, to). The result shares row storage with d.
func (d *Dataset) Slice(from, to int) *Dataset {
	return &Dataset{
		Schema: d.Schema,
		Days:   d.Days[from:to],
		X:      d.X[from:to],
		Y:      d.Y[from:to],
	}
}

// Split cuts the dataset at int(n*ratio). Rows are never shuffled, so every
// training day precedes every test day.
func (d *Dataset) Split(ratio float64) (train, test *Dataset, err error) {
	if ratio <= 0 || ratio >= 1 {
		return nil, nil, fmt.Errorf("%w: got %v", ErrInvalidRatio, ratio)
	}
	n := d.Len()
	cut := int(float64(n) * ratio)
	if cut == 0 {
		return nil, nil, fmt.Errorf("%w: %d rows leave an empty training partition", ErrInsufficientRows, n)
	}
	return d.Slice(0, cut), d.Slice(cut, n), nil
}
