// Package recall provides hybrid context retrieval and ranking for AI chat
// memory in Go.
//
// Recall stores conversational context entries and retrieves the ones most
// relevant to a query through a tiered strategy: knowledge graph traversal
// first, semantic embedding similarity second, and keyword overlap as the
// guaranteed fallback. Results are blended with recency and access frequency,
// deduplicated, diversity-filtered, and scoped per consumer by access rules.
//
// # Basic Usage
//
// Create an engine from an entry store and a semantic index:
//
//	store := entrystore.NewMemoryStore()
//	index := semindex.NewIndex(store, embedder.NewOpenAIClient(embedder.Config{APIKey: apiKey}), nil)
//
//	engine, err := recall.New(store, index, &recall.Options{
//		Filter: access.NewFilter(rules, false, nil),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Adding Context
//
// Entries are typed units of memory. Indexing into the knowledge graph is
// optional and extracts entities and relationships from the content:
//
//	entry := &types.ContextEntry{
//		ID:      "pref-1",
//		Type:    types.EntryTypePreference,
//		Content: "I prefer tabs over spaces",
//		Source:  "chat",
//	}
//	err = engine.AddEntry(ctx, entry, true)
//
// # Retrieving Context
//
// GetRelevantContext returns ranked entries plus metadata describing which
// tier served the request:
//
//	result, err := engine.GetRelevantContext(ctx, recall.Request{
//		ConsumerID: "assistant",
//		Query:      "how does the user like code formatted?",
//		Limit:      5,
//	})
//	for _, entry := range result.Entries {
//		fmt.Printf("%.2f %s\n", entry.RelevanceScore, entry.Content)
//	}
//
// GetContextForPrompt renders the results as a character-budgeted block ready
// to prepend to a model prompt:
//
//	pc, err := engine.GetContextForPrompt(ctx, "assistant", prompt, 2000)
//	fmt.Println(pc.FormattedContext)
//
// # Retrieval Tiers
//
// Each query is served by exactly one tier; tiers are never merged:
//
//   - graph: entity-anchored documents from the knowledge graph
//   - semantic: cosine similarity over embeddings
//   - keyword: token overlap, always available
//   - recency: newest-first listing when the query is empty
//
// A tier that errors, panics, or returns nothing falls through to the next.
//
// # Access Control
//
// An AccessFilter restricts which entry types a consumer may see and caps how
// many entries it receives. Unknown consumers fall back to a safe default
// scope, and rule lookup failures deny rather than leak.
package recall
