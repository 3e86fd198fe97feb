package claude

import (
	"sort"
	"testing"
)

func TestSupportedModelsCatalog(t *testing.T) {
	t.Parallel()

	models := SupportedModels()
	if len(models) != len(modelAliases) {
		t.Fatalf("catalog size = %d, want %d", len(models), len(modelAliases))
	}
	if !sort.SliceIsSorted(models, func(i, j int) bool { return models[i].ID < models[j].ID }) {
		t.Fatalf("catalog not sorted by id: %v", models)
	}
	for _, m := range models {
		if m.Object != "model" || m.OwnedBy != "anthropic" || m.Created != 0 {
			t.Fatalf("catalog entry = %+v, want object=model owned_by=anthropic created=0", m)
		}
	}
}
