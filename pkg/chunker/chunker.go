// Package chunker slices uploaded documents into fixed-size knowledge chunks.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"unicode/utf8"
)

// DefaultSize is the default number of characters per chunk.
const DefaultSize = 1800

// Chunk represents a single slice of a document.
type Chunk struct {
	ID    string // Deterministic: content hash prefix plus index
	Text  string
	Index int
	Runes int // Length of Text in characters
}

// Chunker splits text into consecutive fixed-size slices with no overlap.
// Slices are counted in characters, never splitting a multi-byte character.
type Chunker struct {
	Size int // Characters per chunk (default: 1800)
}

// Chunk splits the input text into chunks. Concatenating the chunk texts in
// order reproduces the input exactly.
func (c *Chunker) Chunk(text string) []Chunk {
	if text == "" {
		return []Chunk{}
	}

	size := c.Size
	if size <= 0 {
		size = DefaultSize
	}

	chunks := make([]Chunk, 0, utf8.RuneCountInString(text)/size+1)
	start, count := 0, 0
	for pos := range text {
		if count == size {
			chunks = append(chunks, newChunk(text[start:pos], len(chunks), count))
			start, count = pos, 0
		}
		count++
	}
	chunks = append(chunks, newChunk(text[start:], len(chunks), count))

	return chunks
}

func newChunk(text string, index, runes int) Chunk {
	return Chunk{
		ID:    generateChunkID(text, index),
		Text:  text,
		Index: index,
		Runes: runes,
	}
}

// ContentHash returns the hex SHA-256 of a whole document, used to detect
// repeated uploads of identical content.
func ContentHash(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])
}

// generateChunkID creates a deterministic ID using content hash and index
func generateChunkID(text string, index int) string {
	hash := sha256.Sum256([]byte(text))
	hashStr := hex.EncodeToString(hash[:8]) // Use first 8 bytes for brevity
	return fmt.Sprintf("%s-%d", hashStr, index)
}
