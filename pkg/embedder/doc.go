// Package embedder provides text embedding clients for vector
// representations.
//
// The Client interface supports batch embedding; implementations handle
// provider batching limits internally. Input text is whitespace-normalized
// and truncated before encoding. A client that failed to load reports
// IsAvailable() == false and the engine degrades to keyword retrieval.
package embedder
