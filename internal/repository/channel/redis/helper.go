package redis

import (
	"context"
	"fmt"
	"reflect"

	"github.com/redis/go-redis/v9"
)

func (r repo) getChannelIDsKey() string {
	return "channels"
}

func (r repo) getChannelKey(channelID string) string {
	return "channel:" + channelID
}

func (r repo) getMemberKeyPrefix(channelID string) string {
	return "channel:" + channelID + ":member:"
}

func (r repo) getMemberKey(channelID, identity string) string {
	return r.getMemberKeyPrefix(channelID) + identity
}

func (r repo) getMemberListKey(channelID string) string {
	return "channel:" + channelID + ":memberlist"
}

func (r repo) expireSeconds() int64 {
	return int64(r.expireDuration.Seconds())
}

func (r repo) HSetStruct(ctx context.Context, c redis.Pipeliner, key string, value interface{}) error {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	fields := make(map[string]interface{})
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i).Tag.Get("redis")
		if tag == "" {
			tag = t.Field(i).Name
		}

		// Handle nil pointer fields
		if field.Kind() == reflect.Ptr && field.IsNil() {
			continue
		}

		if field.Kind() == reflect.Ptr {
			fields[tag] = field.Elem().Interface()
		} else {
			fields[tag] = field.Interface()
		}
	}

	return c.HSet(ctx, key, fields).Err()
}

func (r repo) executePipe(ctx context.Context, pipe redis.Pipeliner) error {
	cmds, err := pipe.Exec(ctx)
	if err != nil {
		for _, cmd := range cmds {
			if err := cmd.Err(); err != nil {
				return err
			}
		}

		return err
	}

	return nil
}

// scriptCode reads the leading integer status of a script reply, which is
// either a bare integer or the first element of an array.
func (r repo) scriptCode(res interface{}) (int64, []interface{}, error) {
	switch v := res.(type) {
	case int64:
		return v, nil, nil
	case []interface{}:
		if len(v) == 0 {
			return 0, nil, fmt.Errorf("empty script reply")
		}
		code, ok := v[0].(int64)
		if !ok {
			return 0, nil, fmt.Errorf("unexpected script reply: %v", v)
		}

		return code, v[1:], nil
	}

	return 0, nil, fmt.Errorf("unexpected script reply type %T", res)
}
