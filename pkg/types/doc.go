// Package types defines the core data model for the recall engine:
// context entries, extracted entities and relationships, access rules,
// and the result shapes returned by the retrieval pipeline.
//
// ContextEntry types form a closed enum because the engine owns that
// vocabulary. Entity types stay open strings: different NLP backends
// emit different label sets and collapsing them would lose information.
package types
