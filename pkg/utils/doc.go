// Package utils provides vector math and text normalization helpers shared
// across the recall engine.
package utils
