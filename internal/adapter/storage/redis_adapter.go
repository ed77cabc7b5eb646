package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

const (
	cartKeyPrefix     = "cart:"
	checkoutKeyPrefix = "checkout:lock:"
)

// addLineScript bumps a cart line by one if the result stays within the
// available stock passed in ARGV[3]. A missing or unreadable line is
// replaced by the snapshot in ARGV[2]. Returns the new quantity or -1.
var addLineScript = redis.NewScript(`
local key = KEYS[1]
local field = ARGV[1]
local available = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local line
local raw = redis.call('HGET', key, field)
if raw then
	local ok, decoded = pcall(cjson.decode, raw)
	if ok and type(decoded) == 'table' and tonumber(decoded['quantity']) then
		line = decoded
	end
end
if not line then
	line = cjson.decode(ARGV[2])
	line['quantity'] = 0
end

local quantity = tonumber(line['quantity']) + 1
if quantity > available then
	return -1
end

line['quantity'] = quantity
redis.call('HSET', key, field, cjson.encode(line))
if ttl > 0 then
	redis.call('PEXPIRE', key, ttl)
end
return quantity
`)

// removeOneScript drops a cart line by one, deleting it at zero.
// Returns the new quantity, 0 when the line is gone, -1 if absent.
var removeOneScript = redis.NewScript(`
local key = KEYS[1]
local field = ARGV[1]
local ttl = tonumber(ARGV[2])

local raw = redis.call('HGET', key, field)
if not raw then
	return -1
end

local ok, line = pcall(cjson.decode, raw)
if not ok or type(line) ~= 'table' or not tonumber(line['quantity']) then
	redis.call('HDEL', key, field)
	return 0
end

local quantity = tonumber(line['quantity']) - 1
if quantity <= 0 then
	redis.call('HDEL', key, field)
	return 0
end

line['quantity'] = quantity
redis.call('HSET', key, field, cjson.encode(line))
if ttl > 0 then
	redis.call('PEXPIRE', key, ttl)
end
return quantity
`)

// releaseGuardScript deletes the checkout guard only when it still holds
// the caller's token in ARGV[1].
var releaseGuardScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// refreshGuardScript resets the guard TTL to ARGV[2] ms when it still
// holds the caller's token. Returns 1 if refreshed, 0 if ownership is lost.
var refreshGuardScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

type RedisAdapter struct {
	client   *redis.Client
	cartTTL  time.Duration
	guardTTL time.Duration
	log      zerolog.Logger
}

type RedisOption func(*RedisAdapter)

func WithCartTTL(ttl time.Duration) RedisOption {
	return func(r *RedisAdapter) { r.cartTTL = ttl }
}

func WithCheckoutGuardTTL(ttl time.Duration) RedisOption {
	return func(r *RedisAdapter) { r.guardTTL = ttl }
}

func WithRedisLogger(log zerolog.Logger) RedisOption {
	return func(r *RedisAdapter) { r.log = log }
}

func NewRedisAdapter(client *redis.Client, opts ...RedisOption) *RedisAdapter {
	r := &RedisAdapter{
		client:   client,
		cartTTL:  72 * time.Hour,
		guardTTL: 30 * time.Second,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func cartKey(cartID string) string {
	return cartKeyPrefix + cartID
}

func (r *RedisAdapter) AddLine(ctx context.Context, cartID string, snapshot domain.CartLine, available int) (int, error) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return 0, err
	}

	qty, err := addLineScript.Run(ctx, r.client, []string{cartKey(cartID)},
		snapshot.ProductID, payload, available, r.cartTTL.Milliseconds()).Int()
	if err != nil {
		return 0, storeErr("add cart line", err)
	}
	if qty < 0 {
		return 0, domain.ErrInsufficientStock
	}
	return qty, nil
}

func (r *RedisAdapter) RemoveOne(ctx context.Context, cartID, productID string) (int, error) {
	qty, err := removeOneScript.Run(ctx, r.client, []string{cartKey(cartID)},
		productID, r.cartTTL.Milliseconds()).Int()
	if err != nil {
		return 0, storeErr("remove cart line", err)
	}
	if qty < 0 {
		return 0, domain.ErrLineNotFound
	}
	return qty, nil
}

func (r *RedisAdapter) DeleteLine(ctx context.Context, cartID, productID string) error {
	if err := r.client.HDel(ctx, cartKey(cartID), productID).Err(); err != nil {
		return storeErr("delete cart line", err)
	}
	return nil
}

func (r *RedisAdapter) PutLine(ctx context.Context, cartID string, line domain.CartLine) error {
	if err := line.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(line)
	if err != nil {
		return err
	}

	key := cartKey(cartID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, line.ProductID, payload)
		if r.cartTTL > 0 {
			pipe.PExpire(ctx, key, r.cartTTL)
		}
		return nil
	})
	if err != nil {
		return storeErr("put cart line", err)
	}
	return nil
}

// Lines returns the cart sorted by product name. Records that fail to
// decode or validate are skipped and logged.
func (r *RedisAdapter) Lines(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	raw, err := r.client.HGetAll(ctx, cartKey(cartID)).Result()
	if err != nil {
		return nil, storeErr("read cart", err)
	}

	lines := make([]domain.CartLine, 0, len(raw))
	for field, value := range raw {
		var line domain.CartLine
		if err := json.Unmarshal([]byte(value), &line); err != nil {
			r.log.Warn().Err(err).Str("cart_id", cartID).Str("field", field).Msg("skipping unreadable cart line")
			continue
		}
		if err := line.Validate(); err != nil || line.ProductID != field {
			r.log.Warn().Str("cart_id", cartID).Str("field", field).Msg("skipping invalid cart line")
			continue
		}
		lines = append(lines, line)
	}

	sort.Slice(lines, func(i, j int) bool {
		if lines[i].ProductName != lines[j].ProductName {
			return lines[i].ProductName < lines[j].ProductName
		}
		return lines[i].ProductID < lines[j].ProductID
	})
	return lines, nil
}

func (r *RedisAdapter) Clear(ctx context.Context, cartID string) error {
	if err := r.client.Del(ctx, cartKey(cartID)).Err(); err != nil {
		return storeErr("clear cart", err)
	}
	return nil
}

func (r *RedisAdapter) AcquireCheckout(ctx context.Context, cartID, token string) (bool, error) {
	ok, err := r.client.SetNX(ctx, checkoutKeyPrefix+cartID, token, r.guardTTL).Result()
	if err != nil {
		return false, storeErr("acquire checkout guard", err)
	}
	return ok, nil
}

func (r *RedisAdapter) RefreshCheckout(ctx context.Context, cartID, token string) (bool, error) {
	n, err := refreshGuardScript.Run(ctx, r.client, []string{checkoutKeyPrefix + cartID},
		token, r.guardTTL.Milliseconds()).Int()
	if err != nil {
		return false, storeErr("refresh checkout guard", err)
	}
	return n == 1, nil
}

func (r *RedisAdapter) ReleaseCheckout(ctx context.Context, cartID, token string) error {
	err := releaseGuardScript.Run(ctx, r.client, []string{checkoutKeyPrefix + cartID}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return storeErr("release checkout guard", err)
	}
	return nil
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
