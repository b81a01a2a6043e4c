package audio

// Chunker splits a byte stream into frames of a fixed size. Bytes short
// of a full frame are retained and emitted once enough data arrives, so
// frames sent to Twilio are always exactly frameSize bytes.
type Chunker struct {
	frameSize int
	tail      []byte
}

// NewChunker creates a chunker emitting frames of frameSize bytes.
func NewChunker(frameSize int) *Chunker {
	return &Chunker{frameSize: frameSize}
}

// Push appends data and returns every complete frame now available.
func (c *Chunker) Push(data []byte) [][]byte {
	c.tail = append(c.tail, data...)

	var frames [][]byte
	for len(c.tail) >= c.frameSize {
		frame := make([]byte, c.frameSize)
		copy(frame, c.tail[:c.frameSize])
		frames = append(frames, frame)
		c.tail = c.tail[c.frameSize:]
	}
	return frames
}

// Pending returns how many bytes are buffered awaiting a full frame.
func (c *Chunker) Pending() int {
	return len(c.tail)
}
