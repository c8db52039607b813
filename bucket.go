package stream

// Bucket is one chunk of in-flight data handed to a filter.
type Bucket struct {
	data []byte
}

// NewBucket returns a bucket over data. The bucket owns the slice.
func NewBucket(data []byte) *Bucket {
	return &Bucket{data: data}
}

// Data returns the bucket content.
func (b *Bucket) Data() []byte { return b.data }

// Len returns the content length.
func (b *Bucket) Len() int { return len(b.data) }

// SetData replaces the content and returns the previous one.
func (b *Bucket) SetData(data []byte) []byte {
	old := b.data
	b.data = data
	return old
}

// Brigade is an ordered list of buckets.
type Brigade struct {
	buckets []*Bucket
}

// NewBrigade returns a brigade holding buckets in order.
func NewBrigade(buckets ...*Bucket) *Brigade {
	return &Brigade{buckets: buckets}
}

// Next removes and returns the head bucket. ok is false at the end of the brigade.
func (b *Brigade) Next() (bucket *Bucket, ok bool) {
	if len(b.buckets) == 0 {
		return nil, false
	}
	bucket = b.buckets[0]
	b.buckets[0] = nil
	b.buckets = b.buckets[1:]
	return bucket, true
}

// Append adds bucket at the tail.
func (b *Brigade) Append(bucket *Bucket) {
	b.buckets = append(b.buckets, bucket)
}

// Prepend adds bucket at the head.
func (b *Brigade) Prepend(bucket *Bucket) {
	b.buckets = append([]*Bucket{bucket}, b.buckets...)
}

// Len returns the number of buckets.
func (b *Brigade) Len() int { return len(b.buckets) }

// Empty reports whether the brigade holds no bucket.
func (b *Brigade) Empty() bool { return len(b.buckets) == 0 }

// Size returns the total byte count of every bucket.
func (b *Brigade) Size() int {
	n := 0
	for _, bk := range b.buckets {
		n += bk.Len()
	}
	return n
}

// Bytes concatenates the buckets without consuming them.
func (b *Brigade) Bytes() []byte {
	out := make([]byte, 0, b.Size())
	for _, bk := range b.buckets {
		out = append(out, bk.data...)
	}
	return out
}
