// Package dataset encodes day records into model-ready feature vectors and
// cuts them into time-ordered partitions.
package dataset

import (
	"fmt"
	"sort"
	"strings"

	"github.com/irfndi/transit-flow/internal/models"
)

// WeatherPrefix names the one-hot indicator columns of the weather category
const WeatherPrefix = "weather_"

// BaseColumns are the numeric inputs that precede the weather indicators
var BaseColumns = []string{"weekday", "month", "is_holiday", "mean_temp", "moving_average"}

// EncodingMismatchError is returned when inference rows cannot be laid out
// with the columns the model was trained on.
type EncodingMismatchError struct {
	Category string
	Missing  []string
	Extra    []string
}

func (e *EncodingMismatchError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("weather category %q is not part of the training vocabulary", e.Category)
	}
	return fmt.Sprintf("feature columns differ from training schema: missing [%s], extra [%s]",
		strings.Join(e.Missing, ", "), strings.Join(e.Extra, ", "))
}

// Schema is the ordered column layout captured at training time
type Schema struct {
	Columns    []string `json:"columns"`
	Vocabulary []string `json:"vocabulary"`
}

// NewSchema captures the weather vocabulary observed in records
func NewSchema(records []models.DailyRecord) Schema {
	seen := make(map[string]struct{})
	for _, rec := range records {
		seen[models.NormalizeWeather(rec.WeatherCategory)] = struct{}{}
	}
	vocabulary := make([]string, 0, len(seen))
	for category := range seen {
		vocabulary = append(vocabulary, category)
	}
	sort.Strings(vocabulary)
	return SchemaFromVocabulary(vocabulary)
}

// SchemaFromVocabulary builds the column layout for a sorted vocabulary
func SchemaFromVocabulary(vocabulary []string) Schema {
	columns := make([]string, 0, len(BaseColumns)+len(vocabulary))
	columns = append(columns, BaseColumns...)
	for _, category := range vocabulary {
		columns = append(columns, WeatherPrefix+category)
	}
	return Schema{
		Columns:    columns,
		Vocabulary: append([]string(nil), vocabulary...),
	}
}

// Width returns the length of an encoded feature vector
func (s Schema) Width() int {
	return len(s.Columns)
}

// Encode lays out one record as a feature vector. y is never an input.
func (s Schema) Encode(rec models.DailyRecord) ([]float64, error) {
	category := models.NormalizeWeather(rec.WeatherCategory)
	pos := sort.SearchStrings(s.Vocabulary, category)
	if pos == len(s.Vocabulary) || s.Vocabulary[pos] != category {
		return nil, &EncodingMismatchError{Category: category}
	}

	x := make([]float64, s.Width())
	x[0] = float64(rec.Weekday)
	x[1] = float64(rec.Month)
	if rec.IsHoliday {
		x[2] = 1
	}
	x[3] = rec.MeanTemp
	x[4] = rec.MovingAverage
	x[len(BaseColumns)+pos] = 1
	return x, nil
}

// Compatible checks that other has exactly the columns of s, in the same order
func (s Schema) Compatible(other Schema) error {
	want := make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		want[c] = struct{}{}
	}
	got := make(map[string]struct{}, len(other.Columns))
	for _, c := range other.Columns {
		got[c] = struct{}{}
	}

	mismatch := &EncodingMismatchError{}
	for _, c := range s.Columns {
		if _, ok := got[c]; !ok {
			mismatch.Missing = append(mismatch.Missing, c)
		}
	}
	for _, c := range other.Columns {
		if _, ok := want[c]; !ok {
			mismatch.Extra = append(mismatch.Extra, c)
		}
	}
	if len(mismatch.Missing) > 0 || len(mismatch.Extra) > 0 {
		return mismatch
	}

	for i := range s.Columns {
		if s.Columns[i] != other.Columns[i] {
			return fmt.Errorf("column %d is %q, trained as %q: %w", i, other.Columns[i], s.Columns[i],
				&EncodingMismatchError{Missing: []string{s.Columns[i]}, Extra: []string{other.Columns[i]}})
		}
	}
	return nil
}
