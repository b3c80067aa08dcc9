package channel

// Stream is a live feed of decoded events. The channel returned by C is closed
// when the underlying subscription is lost or Close is called; Err tells the
// two apart (nil after Close).
type Stream[T any] interface {
	C() <-chan T
	Err() error
	Close() error
}
