// Package graphqlapi serves a read-only GraphQL view of the live log cache,
// the log archive and the stream's connection history.
package graphqlapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"

	"github.com/oremus-labs/ol-bot-console/internal/logstream"
	"github.com/oremus-labs/ol-bot-console/internal/store"
)

// LiveLog exposes the relay's stream client.
type LiveLog interface {
	Connected() bool
	CacheLen() int
	CacheMax() int
	Tail(n int) []logstream.LogEntry
}

// Archive exposes archived logs and history.
type Archive interface {
	ListLogs(store.LogQuery) ([]store.ArchivedLog, error)
	ListHistory(limit int) ([]store.HistoryEntry, error)
}

// Config wires the GraphQL schema. Archive may be nil.
type Config struct {
	Live    LiveLog
	Archive Archive
}

var errNoArchive = errors.New("log archive not configured")

// NewHandler returns an http.Handler that serves /graphql requests.
func NewHandler(cfg Config) (http.Handler, error) {
	builder := schemaBuilder{cfg: cfg}
	schema, err := builder.buildSchema()
	if err != nil {
		return nil, err
	}

	return handler.New(&handler.Config{
		Schema:   schema,
		Pretty:   true,
		GraphiQL: true,
	}), nil
}

type schemaBuilder struct {
	cfg Config
}

func (b schemaBuilder) buildSchema() (*graphql.Schema, error) {
	jsonScalar := graphql.NewScalar(graphql.ScalarConfig{
		Name: "JSON",
		Serialize: func(value interface{}) interface{} {
			return value
		},
	})

	statusType := graphql.NewObject(graphql.ObjectConfig{
		Name: "StreamStatus",
		Fields: graphql.Fields{
			"connected": {Type: graphql.NewNonNull(graphql.Boolean)},
			"cacheSize": {Type: graphql.NewNonNull(graphql.Int)},
			"cacheMax":  {Type: graphql.NewNonNull(graphql.Int)},
		},
	})

	entryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LogEntry",
		Fields: graphql.Fields{
			"uuid":   {Type: graphql.NewNonNull(graphql.String)},
			"type":   {Type: graphql.String},
			"level":  {Type: graphql.String},
			"time":   {Type: graphql.Float},
			"data":   {Type: graphql.String},
			"fields": {Type: jsonScalar},
		},
	})

	archivedType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ArchivedLog",
		Fields: graphql.Fields{
			"id":         {Type: graphql.NewNonNull(graphql.Int)},
			"receivedAt": {Type: graphql.String},
			"entry":      {Type: entryType},
		},
	})

	historyType := graphql.NewObject(graphql.ObjectConfig{
		Name: "HistoryEntry",
		Fields: graphql.Fields{
			"id":        {Type: graphql.NewNonNull(graphql.String)},
			"event":     {Type: graphql.NewNonNull(graphql.String)},
			"message":   {Type: graphql.String},
			"metadata":  {Type: jsonScalar},
			"createdAt": {Type: graphql.String},
		},
	})

	queryFields := graphql.Fields{
		"status": &graphql.Field{
			Type: statusType,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if b.cfg.Live == nil {
					return nil, nil
				}
				return map[string]interface{}{
					"connected": b.cfg.Live.Connected(),
					"cacheSize": b.cfg.Live.CacheLen(),
					"cacheMax":  b.cfg.Live.CacheMax(),
				}, nil
			},
		},
		"logs": &graphql.Field{
			Type: graphql.NewList(entryType),
			Args: graphql.FieldConfigArgument{
				"limit": {Type: graphql.Int},
				"level": {Type: graphql.String},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if b.cfg.Live == nil {
					return []interface{}{}, nil
				}
				limit, _ := p.Args["limit"].(int)
				level, _ := p.Args["level"].(string)
				entries := b.cfg.Live.Tail(limit)
				out := make([]interface{}, 0, len(entries))
				for _, e := range entries {
					if level != "" && !strings.EqualFold(e.Level, level) {
						continue
					}
					out = append(out, mapEntry(e))
				}
				return out, nil
			},
		},
		"archivedLogs": &graphql.Field{
			Type: graphql.NewList(archivedType),
			Args: graphql.FieldConfigArgument{
				"limit": {Type: graphql.Int},
				"level": {Type: graphql.String},
				"since": {Type: graphql.String, Description: "RFC3339 lower bound on receipt time"},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if b.cfg.Archive == nil {
					return nil, errNoArchive
				}
				q := store.LogQuery{Limit: 100}
				if l, ok := p.Args["limit"].(int); ok && l > 0 {
					q.Limit = l
				}
				q.Level, _ = p.Args["level"].(string)
				if raw, _ := p.Args["since"].(string); raw != "" {
					since, err := time.Parse(time.RFC3339, raw)
					if err != nil {
						return nil, errors.New("since must be RFC3339")
					}
					q.Since = since
				}
				logs, err := b.cfg.Archive.ListLogs(q)
				if err != nil {
					return nil, err
				}
				out := make([]interface{}, 0, len(logs))
				for _, l := range logs {
					out = append(out, map[string]interface{}{
						"id":         int(l.ID),
						"receivedAt": l.ReceivedAt.Format(time.RFC3339),
						"entry":      mapEntry(l.Entry),
					})
				}
				return out, nil
			},
		},
		"history": &graphql.Field{
			Type: graphql.NewList(historyType),
			Args: graphql.FieldConfigArgument{
				"limit": {Type: graphql.Int},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if b.cfg.Archive == nil {
					return nil, errNoArchive
				}
				limit := 50
				if l, ok := p.Args["limit"].(int); ok && l > 0 {
					limit = l
				}
				history, err := b.cfg.Archive.ListHistory(limit)
				if err != nil {
					return nil, err
				}
				out := make([]interface{}, 0, len(history))
				for _, h := range history {
					out = append(out, map[string]interface{}{
						"id":        h.ID,
						"event":     h.Event,
						"message":   h.Message,
						"metadata":  h.Metadata,
						"createdAt": h.CreatedAt.Format(time.RFC3339),
					})
				}
				return out, nil
			},
		},
	}

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: queryFields,
		}),
	})
	if err != nil {
		return nil, err
	}
	return &schema, nil
}

func mapEntry(e logstream.LogEntry) map[string]interface{} {
	fields := make(map[string]interface{}, len(e.Fields))
	for k, raw := range e.Fields {
		var v interface{}
		if json.Unmarshal(raw, &v) == nil {
			fields[k] = v
		}
	}
	return map[string]interface{}{
		"uuid":   e.UUID,
		"type":   e.Type,
		"level":  e.Level,
		"time":   e.Time,
		"data":   e.Data,
		"fields": fields,
	}
}

// EncodeGraphQLQuery is a helper for GraphQL testing (JSON request bodies).
func EncodeGraphQLQuery(query string) string {
	query = strings.TrimSpace(query)
	data, _ := json.Marshal(map[string]string{"query": query})
	return string(data)
}
