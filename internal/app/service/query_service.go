package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jose-valero/patrol-time-bot/internal/domain"
)

const (
	DefaultRangeDays = 7
	dateLayout       = "2006-01-02"
)

var ErrBadRange = errors.New("rango de fechas inválido")

// QueryService responde consultas de tiempo de patrullaje. Sólo lee la DB:
// los patrols abiertos en memoria no cuentan.
type QueryService struct {
	patrols PatrolRepo
	clock   Clock
}

func NewQueryService(patrols PatrolRepo, clock Clock) *QueryService {
	return &QueryService{patrols: patrols, clock: clock}
}

// GetPatrols: patrols del oficial con start > from y end < to (ambos estrictos).
func (s *QueryService) GetPatrols(ctx context.Context, officerID int64, from, to time.Time) ([]domain.PatrolRecord, error) {
	return s.patrols.Find(ctx, officerID, from, to)
}

// GetPatrolTime suma (end - start) en segundos.
func (s *QueryService) GetPatrolTime(ctx context.Context, officerID int64, from, to time.Time) (int64, error) {
	recs, err := s.GetPatrols(ctx, officerID, from, to)
	if err != nil {
		return 0, err
	}
	return TotalSeconds(recs), nil
}

func TotalSeconds(recs []domain.PatrolRecord) int64 {
	var total int64
	for _, r := range recs {
		total += int64(r.Duration() / time.Second)
	}
	return total
}

// RangeRequest son las opciones crudas del comando; strings vacíos = no vinieron.
type RangeRequest struct {
	From string
	To   string
	Days int // 0 = default
}

// ResolveRange: to = hoy (UTC) si no viene, hasta las 23:59:59; from a las 00:00:00,
// o to - days si no viene.
func (s *QueryService) ResolveRange(req RangeRequest) (time.Time, time.Time, error) {
	var toDate time.Time
	if req.To == "" {
		now := s.clock.Now().UTC()
		toDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		d, err := time.ParseInLocation(dateLayout, req.To, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: to=%q (usa YYYY-MM-DD)", ErrBadRange, req.To)
		}
		toDate = d
	}
	to := toDate.Add(23*time.Hour + 59*time.Minute + 59*time.Second)

	var from time.Time
	if req.From != "" {
		d, err := time.ParseInLocation(dateLayout, req.From, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: from=%q (usa YYYY-MM-DD)", ErrBadRange, req.From)
		}
		from = d
	} else {
		days := req.Days
		if days < 0 {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: days=%d", ErrBadRange, days)
		}
		if days == 0 {
			days = DefaultRangeDays
		}
		from = to.AddDate(0, 0, -days)
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from >= to", ErrBadRange)
	}
	return from, to, nil
}

// FormatDuration arma W:D:H:M:S.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	w := seconds / (7 * 86400)
	seconds %= 7 * 86400
	d := seconds / 86400
	seconds %= 86400
	h := seconds / 3600
	seconds %= 3600
	m := seconds / 60
	sec := seconds % 60
	return fmt.Sprintf("%d:%d:%02d:%02d:%02d", w, d, h, m, sec)
}

// PatrolTimeMessage es el texto que ve el usuario en /patrol_time.
func (s *QueryService) PatrolTimeMessage(ctx context.Context, officerID int64, req RangeRequest, list bool) (string, error) {
	from, to, err := s.ResolveRange(req)
	if err != nil {
		return "", err
	}
	recs, err := s.GetPatrols(ctx, officerID, from, to)
	if err != nil {
		return "", fmt.Errorf("get patrols: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "⏱️ <@%d> del <t:%d:d> al <t:%d:d>: **%s**\n",
		officerID, from.Unix(), to.Unix(), FormatDuration(TotalSeconds(recs)))
	if !list {
		return b.String(), nil
	}
	if len(recs) == 0 {
		b.WriteString("_sin patrullajes en el rango_\n")
		return b.String(), nil
	}
	for _, r := range recs {
		fmt.Fprintf(&b, "• <t:%d:f> → <t:%d:f> `%s` <#%d> (%d canales)\n",
			r.Start.Unix(), r.End.Unix(), FormatDuration(int64(r.Duration()/time.Second)),
			r.MainChannel.ChannelID, len(r.Voices))
	}
	return b.String(), nil
}
