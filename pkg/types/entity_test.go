package types

import "testing"

func TestEntityIDDeterministic(t *testing.T) {
	a := EntityID("John Smith", EntityPerson)
	b := EntityID("  john smith ", EntityPerson)
	if a != b {
		t.Errorf("ids differ for same normalized entity: %s vs %s", a, b)
	}
	c := EntityID("John Smith", EntityOrg)
	if a == c {
		t.Error("ids should differ across entity types")
	}
}

func TestInferRelation(t *testing.T) {
	tests := []struct {
		name       string
		sourceType string
		targetType string
		verb       string
		want       string
	}{
		{"person works at org", EntityPerson, EntityOrg, "work", RelationWorksAt},
		{"person founded org", EntityPerson, EntityOrg, "found", RelationFounded},
		{"org acquires org", EntityOrg, EntityOrg, "acquire", RelationAcquired},
		{"wildcard money", EntityOrg, EntityMoney, "pay", RelationTransacted},
		{"wildcard date", EntityPerson, EntityDate, "occur", RelationOccurredOn},
		{"unmatched defaults to mentions", EntityPerson, EntityPerson, "meet", RelationMentions},
		{"unknown verb defaults to mentions", EntityPerson, EntityOrg, "dance", RelationMentions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InferRelation(tt.sourceType, tt.targetType, tt.verb)
			if got != tt.want {
				t.Errorf("InferRelation(%s, %s, %s) = %s, want %s",
					tt.sourceType, tt.targetType, tt.verb, got, tt.want)
			}
		})
	}
}

func TestLemmatizeVerb(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"works", "work"},
		{"working", "work"},
		{"worked", "work"},
		{"founded", "found"},
		{"acquired", "acquire"},
		{"occurred", "occur"},
		{"lives", "live"},
		{"moved", "move"},
		{"paid", "pay"},
		{"bought", "buy"},
		{"happens", "happen"},
		{"work", "work"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := LemmatizeVerb(tt.in); got != tt.want {
				t.Errorf("LemmatizeVerb(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRelationshipKey(t *testing.T) {
	r := Relationship{SourceID: "a", TargetID: "b", Type: RelationWorksAt}
	same := Relationship{SourceID: "a", TargetID: "b", Type: RelationWorksAt, DiscoveredIn: "other-doc"}
	if r.Key() != same.Key() {
		t.Error("key should ignore discovery document")
	}
}

func TestAccessRuleValidate(t *testing.T) {
	rule := AccessRule{ConsumerID: "c1", AllowAll: true, DenyAll: true}
	if err := rule.Validate(); err != ErrConflictingRule {
		t.Errorf("expected ErrConflictingRule, got %v", err)
	}
	ok := AccessRule{ConsumerID: "c1", Scopes: []EntryType{EntryTypeNote}}
	if err := ok.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !ok.HasScope(EntryTypeNote) || ok.HasScope(EntryTypeFile) {
		t.Error("HasScope mismatch")
	}
}

func TestAccessRuleUsageCount(t *testing.T) {
	rule := AccessRule{ConsumerID: "c1"}
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				rule.RecordUsage()
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	if got := rule.UsageCount(); got != 800 {
		t.Errorf("UsageCount = %d, want 800", got)
	}
}
