package di

import (
	"context"
	"time"

	"github.com/mix-go/xdi"
	"github.com/redis/go-redis/v9"
)

func init() {
	obj := xdi.Object{
		Name: "goredis",
		New: func() (i interface{}, e error) {
			hc := current().History
			rdb := redis.NewClient(&redis.Options{
				Addr:        hc.RedisAddr,
				Password:    hc.RedisPassword,
				DB:          hc.RedisDB,
				DialTimeout: 5 * time.Second,
			})
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				return nil, err
			}
			return rdb, nil
		},
	}
	if err := xdi.Provide(&obj); err != nil {
		panic(err)
	}
}

func GoRedis() (rdb *redis.Client) {
	if err := xdi.Populate("goredis", &rdb); err != nil {
		panic(err)
	}
	return
}
