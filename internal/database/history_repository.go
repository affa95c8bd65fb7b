package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/irfndi/transit-flow/internal/metrics"
	"github.com/irfndi/transit-flow/internal/models"
)

// DatabasePool defines the interface for database pool operations.
// *pgxpool.Pool and pgxmock pools both satisfy it.
type DatabasePool interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// HistoryRepository reads ridership history and the calendar/weather feature
// table from PostgreSQL.
type HistoryRepository struct {
	pool DatabasePool
}

func NewHistoryRepository(pool DatabasePool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

// dayRange renders the optional bounds of a day range as a WHERE fragment.
// Zero times leave that side open. Placeholders start after offset.
func dayRange(column string, from, to time.Time, offset int) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if !from.IsZero() {
		args = append(args, models.TruncateDay(from))
		conds = append(conds, column+" >= $"+strconv.Itoa(offset+len(args)))
	}
	if !to.IsZero() {
		args = append(args, models.TruncateDay(to))
		conds = append(conds, column+" <= $"+strconv.Itoa(offset+len(args)))
	}
	return strings.Join(conds, " AND "), args
}

func where(conds ...string) string {
	kept := conds[:0]
	for _, c := range conds {
		if c != "" {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(kept, " AND ")
}

// DailyCounts aggregates tap-in events per calendar day
func (r *HistoryRepository) DailyCounts(ctx context.Context, from, to time.Time) ([]models.DailyCount, error) {
	cond, args := dayRange("day", from, to, 0)
	query := "SELECT day, COUNT(*) AS count FROM ridership_events" + where(cond) +
		" GROUP BY day ORDER BY day"
	return r.queryCounts(ctx, "daily_counts", query, args)
}

// StationCounts aggregates the events of one station per calendar day
func (r *HistoryRepository) StationCounts(ctx context.Context, station string, from, to time.Time) ([]models.DailyCount, error) {
	cond, args := dayRange("day", from, to, 1)
	query := "SELECT day, COUNT(*) AS count FROM ridership_events" + where("station = $1", cond) +
		" GROUP BY day ORDER BY day"
	return r.queryCounts(ctx, "station_counts", query, append([]interface{}{station}, args...))
}

func (r *HistoryRepository) queryCounts(ctx context.Context, operation, query string, args []interface{}) (counts []models.DailyCount, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(operation, "ridership_events", time.Since(start), err) }()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ridership counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			day time.Time
			n   int64
		)
		if err := rows.Scan(&day, &n); err != nil {
			return nil, fmt.Errorf("failed to scan ridership count: %w", err)
		}
		counts = append(counts, models.DailyCount{Day: models.TruncateDay(day), Count: int(n)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ridership counts: %w", err)
	}
	return counts, nil
}

// Holidays returns the holiday flag of every day in range
func (r *HistoryRepository) Holidays(ctx context.Context, from, to time.Time) (holidays []models.HolidayFlag, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("holidays", "holidays", time.Since(start), err) }()

	cond, args := dayRange("day", from, to, 0)
	rows, err := r.pool.Query(ctx, "SELECT day, is_holiday FROM holidays"+where(cond)+" ORDER BY day", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h models.HolidayFlag
		if err := rows.Scan(&h.Day, &h.IsHoliday); err != nil {
			return nil, fmt.Errorf("failed to scan holiday: %w", err)
		}
		h.Day = models.TruncateDay(h.Day)
		holidays = append(holidays, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holidays: %w", err)
	}
	return holidays, nil
}

// Weather returns the daily weather summaries in range
func (r *HistoryRepository) Weather(ctx context.Context, from, to time.Time) (observations []models.WeatherObservation, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("weather", "weather", time.Since(start), err) }()

	cond, args := dayRange("day", from, to, 0)
	rows, err := r.pool.Query(ctx,
		"SELECT day, weather, high_temp, low_temp FROM weather"+where(cond)+" ORDER BY day", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query weather: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var w models.WeatherObservation
		if err := rows.Scan(&w.Day, &w.Category, &w.HighTemp, &w.LowTemp); err != nil {
			return nil, fmt.Errorf("failed to scan weather: %w", err)
		}
		w.Day = models.TruncateDay(w.Day)
		observations = append(observations, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating weather: %w", err)
	}
	return observations, nil
}

// FeatureTable returns the precomputed day features. Future days carry a
// NULL ridership and come back with a nil Y.
func (r *HistoryRepository) FeatureTable(ctx context.Context, from, to time.Time) (table []models.FeatureDay, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("feature_table", "day_features", time.Since(start), err) }()

	cond, args := dayRange("day", from, to, 0)
	rows, err := r.pool.Query(ctx,
		"SELECT day, weekday, month, is_holiday, weather, mean_temp, y FROM day_features"+where(cond)+" ORDER BY day",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query day features: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			f              models.FeatureDay
			weekday, month int32
			y              *int64
		)
		if err := rows.Scan(&f.Day, &weekday, &month, &f.IsHoliday, &f.WeatherCategory, &f.MeanTemp, &y); err != nil {
			return nil, fmt.Errorf("failed to scan day features: %w", err)
		}
		f.Day = models.TruncateDay(f.Day)
		f.Weekday, f.Month = int(weekday), int(month)
		if y != nil {
			v := int(*y)
			f.Y = &v
		}
		table = append(table, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating day features: %w", err)
	}
	return table, nil
}

// RecordEvents inserts tap-in events and returns how many rows were written
func (r *HistoryRepository) RecordEvents(ctx context.Context, events []models.RidershipEvent) (written int64, err error) {
	if len(events) == 0 {
		return 0, nil
	}
	start := time.Now()
	defer func() { metrics.RecordDBQuery("record_events", "ridership_events", time.Since(start), err) }()

	var (
		sb   strings.Builder
		args = make([]interface{}, 0, 2*len(events))
	)
	sb.WriteString("INSERT INTO ridership_events (day, station) VALUES ")
	for i, ev := range events {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($%d, $%d)", 2*i+1, 2*i+2)
		args = append(args, models.TruncateDay(ev.Day), ev.Station)
	}

	tag, err := r.pool.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to record ridership events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks that the feature table is reachable
func (r *HistoryRepository) Ping(ctx context.Context) error {
	var one int
	if err := r.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
