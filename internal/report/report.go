package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"shop-assistant/internal/storage"
	"shop-assistant/internal/usage"
)

// UserSummary is one user's current counters.
type UserSummary struct {
	UserID          int64 `json:"user_id"`
	DailyMessages   int   `json:"daily_messages"`
	MonthlyMessages int   `json:"monthly_messages"`
	TokensToday     int   `json:"tokens_today"`
	TokensThisMonth int   `json:"tokens_this_month"`
}

// Summary is a read-only projection of the usage store: per-user rows
// plus global totals. It is recomputed from scratch on each request.
type Summary struct {
	Users           []UserSummary `json:"users"`
	TotalUsers      int           `json:"total_users"`
	DailyMessages   int           `json:"daily_messages"`
	MonthlyMessages int           `json:"monthly_messages"`
	TokensToday     int           `json:"tokens_today"`
	TokensThisMonth int           `json:"tokens_this_month"`
}

func Summarize(records map[int64]usage.Record) Summary {
	s := Summary{TotalUsers: len(records)}
	for id, rec := range records {
		s.Users = append(s.Users, UserSummary{
			UserID:          id,
			DailyMessages:   rec.DailyMessageCount,
			MonthlyMessages: rec.MonthlyMessageCount,
			TokensToday:     rec.TokensToday,
			TokensThisMonth: rec.TokensThisMonth,
		})
		s.DailyMessages += rec.DailyMessageCount
		s.MonthlyMessages += rec.MonthlyMessageCount
		s.TokensToday += rec.TokensToday
		s.TokensThisMonth += rec.TokensThisMonth
	}
	sort.Slice(s.Users, func(i, j int) bool { return s.Users[i].UserID < s.Users[j].UserID })
	return s
}

// DayCount is the number of user messages recorded on one calendar day.
type DayCount struct {
	Date     string `json:"date"`
	Messages int    `json:"messages"`
}

// DailySeries buckets audit log events by calendar day over the
// trailing window ending at `until`, counting user-authored messages
// only. Days without traffic appear with a zero count.
func DailySeries(events []storage.Event, days int, until time.Time) []DayCount {
	if days <= 0 {
		return nil
	}
	end := time.Date(until.Year(), until.Month(), until.Day(), 0, 0, 0, 0, until.Location())
	start := end.AddDate(0, 0, -(days - 1))

	counts := make(map[string]int)
	for _, ev := range events {
		if ev.Role != "user" {
			continue
		}
		ts := ev.Timestamp.In(until.Location())
		if ts.Before(start) || ts.After(end.Add(24*time.Hour)) {
			continue
		}
		counts[ts.Format("2006-01-02")]++
	}

	out := make([]DayCount, 0, days)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		date := d.Format("2006-01-02")
		out = append(out, DayCount{Date: date, Messages: counts[date]})
	}
	return out
}

// Text renders the summary for the administrator chat.
func (s Summary) Text() string {
	var b strings.Builder
	b.WriteString("📊 Uso del asistente\n\n")
	b.WriteString(fmt.Sprintf("Usuarios: %d\n", s.TotalUsers))
	b.WriteString(fmt.Sprintf("Mensajes hoy: %d (este mes: %d)\n", s.DailyMessages, s.MonthlyMessages))
	b.WriteString(fmt.Sprintf("Tokens hoy: %d (este mes: %d)\n", s.TokensToday, s.TokensThisMonth))
	if len(s.Users) > 0 {
		b.WriteString("\nPor usuario:\n")
		for _, u := range s.Users {
			b.WriteString(fmt.Sprintf("- %d: %d mensajes hoy, %d este mes, %d tokens este mes\n",
				u.UserID, u.DailyMessages, u.MonthlyMessages, u.TokensThisMonth))
		}
	}
	return b.String()
}

// SeriesText renders a daily series as one line per day.
func SeriesText(series []DayCount) string {
	var b strings.Builder
	b.WriteString("📅 Mensajes por día:\n")
	for _, d := range series {
		b.WriteString(fmt.Sprintf("%s: %d\n", d.Date, d.Messages))
	}
	return b.String()
}
