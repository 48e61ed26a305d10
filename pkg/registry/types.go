package registry

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ParamType enumerates the declared types a request or query parameter can
// carry. Values are coerced from their raw string form before binding.
type ParamType string

const (
	TypeString    ParamType = "STRING"
	TypeInteger   ParamType = "INTEGER"
	TypeLong      ParamType = "LONG"
	TypeBoolean   ParamType = "BOOLEAN"
	TypeDouble    ParamType = "DOUBLE"
	TypeTimestamp ParamType = "TIMESTAMP"
	TypeDecimal   ParamType = "DECIMAL"
)

// ParseParamType normalizes and validates a declared parameter type.
func ParseParamType(s string) (ParamType, error) {
	t := ParamType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case TypeString, TypeInteger, TypeLong, TypeBoolean, TypeDouble, TypeTimestamp, TypeDecimal:
		return t, nil
	}
	return "", fmt.Errorf("unknown parameter type %q", s)
}

// UnmarshalText lets yaml/json/mapstructure decode a ParamType with
// validation in one place.
func (t *ParamType) UnmarshalText(b []byte) error {
	parsed, err := ParseParamType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// PoolSettings carries the per-database connection pool tunables.
// Zero values fall back to pgxpool defaults.
type PoolSettings struct {
	MaxConns    int32         `mapstructure:"maxConns" json:"maxConns,omitempty"`
	MinIdle     int32         `mapstructure:"minIdle" json:"minIdle,omitempty"`
	ConnTimeout time.Duration `mapstructure:"connTimeout" json:"connTimeout,omitempty"`
	IdleTimeout time.Duration `mapstructure:"idleTimeout" json:"idleTimeout,omitempty"`
	MaxLifetime time.Duration `mapstructure:"maxLifetime" json:"maxLifetime,omitempty"`
}

// DatabaseDefinition describes one named database and how to pool
// connections to it. Immutable after load.
type DatabaseDefinition struct {
	Name        string       `mapstructure:"-" json:"name"`
	URL         string       `mapstructure:"url" json:"url"`
	Username    string       `mapstructure:"username" json:"username,omitempty"`
	Password    string       `mapstructure:"password" json:"-"`
	Driver      string       `mapstructure:"driver" json:"driver,omitempty"`
	Pool        PoolSettings `mapstructure:"pool" json:"pool"`
	HealthQuery string       `mapstructure:"healthQuery" json:"healthQuery,omitempty"`
}

// ConnString returns the connection URL with any separately declared
// credentials injected.
func (d DatabaseDefinition) ConnString() string {
	if d.Username == "" {
		return d.URL
	}
	u, err := url.Parse(d.URL)
	if err != nil {
		return d.URL
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.Username, d.Password)
	} else {
		u.User = url.User(d.Username)
	}
	return u.String()
}

// ParameterSpec declares one named, typed, positioned parameter. Position is
// 1-based and matches a `?` placeholder in the owning query's SQL.
type ParameterSpec struct {
	Name     string    `mapstructure:"name" json:"name"`
	Type     ParamType `mapstructure:"type" json:"type"`
	Required bool      `mapstructure:"required" json:"required"`
	Position int       `mapstructure:"position" json:"position,omitempty"`
}

// QueryDefinition is a named SQL statement bound to one database.
type QueryDefinition struct {
	Name       string          `mapstructure:"-" json:"name"`
	SQL        string          `mapstructure:"sql" json:"sql"`
	Database   string          `mapstructure:"database" json:"database"`
	Parameters []ParameterSpec `mapstructure:"parameters" json:"parameters,omitempty"`
}

// PaginationSpec enables limit/offset paging for an endpoint.
type PaginationSpec struct {
	Enabled     bool `mapstructure:"enabled" json:"enabled"`
	DefaultSize int  `mapstructure:"defaultSize" json:"defaultSize"`
	MaxSize     int  `mapstructure:"maxSize" json:"maxSize"`
}

// EndpointDefinition maps an HTTP method and path template onto a query.
// Path templates may contain {param} placeholders.
type EndpointDefinition struct {
	Name       string          `mapstructure:"-" json:"name"`
	Method     string          `mapstructure:"method" json:"method"`
	Path       string          `mapstructure:"path" json:"path"`
	Query      string          `mapstructure:"query" json:"query"`
	CountQuery string          `mapstructure:"countQuery" json:"countQuery,omitempty"`
	Pagination *PaginationSpec `mapstructure:"pagination" json:"pagination,omitempty"`
	Parameters []ParameterSpec `mapstructure:"parameters" json:"parameters,omitempty"`
	Response   string          `mapstructure:"response" json:"response,omitempty"`
}

// PathParams returns the {param} placeholder names in declaration order.
func (e EndpointDefinition) PathParams() []string {
	var names []string
	path := e.Path
	for {
		open := strings.IndexByte(path, '{')
		if open < 0 {
			return names
		}
		closing := strings.IndexByte(path[open:], '}')
		if closing < 0 {
			return names
		}
		names = append(names, path[open+1:open+closing])
		path = path[open+closing+1:]
	}
}
