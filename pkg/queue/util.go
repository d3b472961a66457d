package queue

import (
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

func marshalJSON(v interface{}) ([]byte, error) { return json.Marshal(v) }

func redisZ(score float64, member string) redis.Z { return redis.Z{Score: score, Member: member} }
