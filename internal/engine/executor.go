package engine

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Executor dispatches a named script against Redis via EVALSHA, loading
// the script and retrying exactly once on NOSCRIPT. It does not
// interpret script results beyond detecting that one error.
type Executor struct {
	rdb redis.UniversalClient
}

// NewExecutor wraps a redis.UniversalClient for script dispatch.
func NewExecutor(rdb redis.UniversalClient) *Executor {
	return &Executor{rdb: rdb}
}

// Call issues EVALSHA for s against keys/args. On a missing-script
// (NOSCRIPT) response it issues SCRIPT LOAD for the script source, then
// re-issues EVALSHA once more; that second attempt's result is returned
// whether or not SCRIPT LOAD itself succeeded, since a concurrent client
// may already have loaded the script by the time ours completes.
func (e *Executor) Call(ctx context.Context, s script, keys []string, args []interface{}) (interface{}, error) {
	res, err := e.rdb.EvalSha(ctx, s.sha, keys, args...).Result()
	if err == nil {
		return res, nil
	}
	if !isNoScript(err) {
		return nil, newRedisError(s.name, err)
	}

	// Best-effort: ignore the load error, the retry below is the
	// authoritative outcome regardless.
	_, _ = e.rdb.ScriptLoad(ctx, s.source).Result()

	res, err = e.rdb.EvalSha(ctx, s.sha, keys, args...).Result()
	if err != nil {
		return nil, newRedisError(s.name, err)
	}
	return res, nil
}

func isNoScript(err error) bool {
	return err != nil && strings.Contains(err.Error(), "NOSCRIPT")
}
