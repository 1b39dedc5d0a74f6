package flow

// through applies first, then second.
type through[IN, MID, OUT any] struct {
	first  Transformer[IN, MID]
	second Transformer[MID, OUT]
}

func (t through[IN, MID, OUT]) Apply(in Stream[IN]) Stream[OUT] {
	return t.second.Apply(t.first.Apply(in))
}

// Through composes two transformers: the result applies t1, then t2.
func Through[IN, MID, OUT any](t1 Transformer[IN, MID], t2 Transformer[MID, OUT]) Transformer[IN, OUT] {
	return through[IN, MID, OUT]{first: t1, second: t2}
}

type chain[T any] []Transformer[T, T]

func (c chain[T]) Apply(in Stream[T]) Stream[T] {
	return Pipe(in, c...)
}

// Chain composes transformers of the same type, applied left to right.
// An empty chain passes the stream through unchanged.
func Chain[T any](transformers ...Transformer[T, T]) Transformer[T, T] {
	return chain[T](transformers)
}

// Pipe applies transformers to source, left to right.
func Pipe[T any](source Stream[T], transformers ...Transformer[T, T]) Stream[T] {
	for _, t := range transformers {
		source = t.Apply(source)
	}
	return source
}

// Apply is transformer.Apply(stream), written source first.
func Apply[IN, OUT any](stream Stream[IN], transformer Transformer[IN, OUT]) Stream[OUT] {
	return transformer.Apply(stream)
}
