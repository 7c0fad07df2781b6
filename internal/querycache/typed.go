package querycache

import "context"

// Query is Fetch with a typed fetch function and result.
func Query[T any](ctx context.Context, c *Cache, key Key, fetch func(context.Context) (T, error), opts ...QueryOption) (T, error) {
	v, err := c.Fetch(ctx, key, Typed(fetch), opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}

// Typed adapts a typed fetch function to FetchFunc.
func Typed[T any](fetch func(context.Context) (T, error)) FetchFunc {
	return func(ctx context.Context) (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// GetData returns the cached value of key if it holds a T.
func GetData[T any](c *Cache, key Key) (T, bool) {
	v, ok := c.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// SetData writes a typed value.
func SetData[T any](c *Cache, key Key, v T) {
	c.Write(key, v)
}

// UpdateData rewrites a cached T in place. Keys without a T value are left
// alone. It reports whether a value was written.
func UpdateData[T any](c *Cache, key Key, fn func(T) T) bool {
	return c.Update(key, func(old any, ok bool) (any, bool) {
		if !ok {
			return nil, false
		}
		t, isT := old.(T)
		if !isT {
			return nil, false
		}
		return fn(t), true
	})
}
