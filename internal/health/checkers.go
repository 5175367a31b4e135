package health

import "context"

// Pinger is satisfied by pgxpool.Pool and pgx.Conn.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Database returns a readiness checker that pings the translation record
// store.
func Database(p Pinger) Checker {
	return Checker{
		Name: "database",
		Check: func(ctx context.Context) error {
			return p.Ping(ctx)
		},
	}
}

// Static returns a checker that always reports the given error; nil means
// permanently healthy. Used for dependencies validated once at startup, such
// as provider credentials.
func Static(name string, err error) Checker {
	return Checker{
		Name:  name,
		Check: func(context.Context) error { return err },
	}
}
