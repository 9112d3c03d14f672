// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package knowledge

import (
	"context"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/stepflow-dev/stepflow/pkg/apperr"
)

const semanticCollection = "knowledge_findings"
const embeddingDims = 256

// SemanticIndex layers nearest-neighbor recall on top of the mandatory
// FTS index using an in-process chromem-go collection. It has no
// external embedding provider wired in, so it embeds text with a
// lightweight deterministic hashed-bag-of-words vector instead of a
// learned model — good enough to recover near-duplicate and paraphrased
// findings the lexical FTS match misses, without taking a network
// dependency on an embedding API.
type SemanticIndex struct {
	mu         sync.Mutex
	db         *chromem.DB
	collection *chromem.Collection
}

// NewSemanticIndex constructs an in-memory semantic index.
func NewSemanticIndex() (*SemanticIndex, error) {
	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection(semanticCollection, nil, embed)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "knowledge: creating semantic collection")
	}
	return &SemanticIndex{db: db, collection: col}, nil
}

// Index adds or replaces the semantic entry for finding id.
func (idx *SemanticIndex) Index(ctx context.Context, id int64, title, content string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	vector, _ := embed(ctx, title+"\n"+content)
	doc := chromem.Document{
		ID:        strconv.FormatInt(id, 10),
		Content:   content,
		Embedding: vector,
	}
	if err := idx.collection.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "knowledge: indexing finding %d", id)
	}
	return nil
}

// Search returns up to topK finding ids whose embedding is nearest to
// query's embedding.
func (idx *SemanticIndex) Search(ctx context.Context, query string, topK int) ([]int64, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.collection.Count() == 0 {
		return nil, nil
	}
	if topK > idx.collection.Count() {
		topK = idx.collection.Count()
	}

	vector, _ := embed(ctx, query)
	results, err := idx.collection.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "knowledge: semantic search for %q", query)
	}

	ids := make([]int64, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// embed is a deterministic hashed-bag-of-words embedding: each token
// hashes into one of embeddingDims buckets, the vector is the token
// histogram normalized to unit length so chromem's cosine similarity
// behaves like a crude lexical-overlap score.
func embed(_ context.Context, text string) ([]float32, error) {
	vector := make([]float32, embeddingDims)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vector[int(h.Sum32())%embeddingDims]++
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vector, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vector {
		vector[i] = float32(float64(v) / norm)
	}
	return vector, nil
}
