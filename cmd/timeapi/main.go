package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/jose-valero/patrol-time-bot/internal/app/service"
	"github.com/jose-valero/patrol-time-bot/internal/domain"
	"github.com/jose-valero/patrol-time-bot/internal/infra/storage"
)

const secretHeader = "x-patrol-secret"

type api struct {
	query  *service.QueryService
	secret string
}

type patrolJSON struct {
	ID            int32     `json:"id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Seconds       int64     `json:"seconds"`
	MainChannelID string    `json:"main_channel_id"`
	Channels      int       `json:"channels"`
}

type timeResponse struct {
	OfficerID string       `json:"officer_id"` // string: un snowflake no entra en un double de JS
	From      time.Time    `json:"from"`
	To        time.Time    `json:"to"`
	Seconds   int64        `json:"seconds"`
	Formatted string       `json:"formatted"`
	Patrols   []patrolJSON `json:"patrols,omitempty"`
}

func header(req events.APIGatewayV2HTTPRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func reply(code int, body any) events.APIGatewayV2HTTPResponse {
	b, err := json.Marshal(body)
	if err != nil {
		code, b = 500, []byte(`{"error":"encode"}`)
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: code,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(b),
	}
}

func errBody(msg string) map[string]string { return map[string]string{"error": msg} }

func (a *api) handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	fmt.Printf("timeapi hit | path=%s method=%s ip=%s\n",
		req.RawPath, req.RequestContext.HTTP.Method, req.RequestContext.HTTP.SourceIP)

	got := header(req, secretHeader)
	if a.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(a.secret)) != 1 {
		return reply(401, errBody("unauthorized")), nil
	}
	if m := req.RequestContext.HTTP.Method; m != "" && m != "GET" {
		return reply(405, errBody("method not allowed")), nil
	}
	if a.query == nil {
		return reply(503, errBody("no database")), nil
	}

	q := req.QueryStringParameters
	officerID, err := strconv.ParseInt(q["officer"], 10, 64)
	if err != nil || officerID <= 0 {
		return reply(400, errBody("officer must be a discord user id")), nil
	}
	rr := service.RangeRequest{From: q["from"], To: q["to"]}
	if d := q["days"]; d != "" {
		if rr.Days, err = strconv.Atoi(d); err != nil {
			return reply(400, errBody("days must be an integer")), nil
		}
	}
	from, to, err := a.query.ResolveRange(rr)
	if err != nil {
		return reply(400, errBody(err.Error())), nil
	}

	recs, err := a.query.GetPatrols(ctx, officerID, from, to)
	if err != nil {
		fmt.Println("get patrols:", err)
		return reply(500, errBody("query failed")), nil
	}
	total := service.TotalSeconds(recs)
	resp := timeResponse{
		OfficerID: strconv.FormatInt(officerID, 10),
		From:      from,
		To:        to,
		Seconds:   total,
		Formatted: service.FormatDuration(total),
	}
	if list, _ := strconv.ParseBool(q["list"]); list {
		resp.Patrols = toJSON(recs)
	}
	return reply(200, resp), nil
}

func toJSON(recs []domain.PatrolRecord) []patrolJSON {
	out := make([]patrolJSON, 0, len(recs))
	for _, r := range recs {
		out = append(out, patrolJSON{
			ID:            r.ID,
			Start:         r.Start,
			End:           r.End,
			Seconds:       int64(r.Duration() / time.Second),
			MainChannelID: strconv.FormatInt(r.MainChannel.ChannelID, 10),
			Channels:      len(r.Voices),
		})
	}
	return out
}

func newAPI(ctx context.Context) (*api, error) {
	a := &api{secret: os.Getenv("PATROL_API_SECRET")}
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return a, errors.New("DATABASE_URL empty")
	}
	// lambda: pool chico, las invocaciones son secuenciales por instancia
	db, err := storage.Open(ctx, dsn, storage.PoolOptions{MaxConns: 2, MinConns: 1, Timeout: 10 * time.Second})
	if err != nil {
		return a, err
	}
	a.query = service.NewQueryService(storage.NewPatrolRepo(db), service.RealClock())
	return a, nil
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	a, err := newAPI(ctx)
	cancel()
	if err != nil {
		// sin DB igual arrancamos: respondemos 503
		fmt.Println("timeapi init:", err)
	}
	lambda.Start(a.handle)
}
