package gateway

import (
	"context"
	"fmt"

	"github.com/magnusmanske/baglama2-go/internal/baglamaerr"
	"github.com/magnusmanske/baglama2-go/internal/types"
)

// GetEmbeddingsForFiles queries the repo's globalimagelinks index for
// every page, on any wiki, that embeds any of the given files (spec §4.5
// step 3). It issues one query per call against exactly the files given;
// the pipeline is the one that sub-batches into BatchPageDiscoverySubBatch
// windows before calling, so this method never needs to split its input.
func (g *Gateway) GetEmbeddingsForFiles(ctx context.Context, files []types.FileName) ([]types.Embedding, error) {
	var out []types.Embedding
	for _, batch := range chunk(files, 0) {
		query := fmt.Sprintf(`
			SELECT gil_wiki, gil_page, gil_page_namespace_id, gil_page_namespace, gil_page_title, gil_to
			FROM globalimagelinks WHERE gil_to IN (%s)`, placeholders(len(batch)))
		args := make([]any, len(batch))
		for i, f := range batch {
			args[i] = string(f)
		}

		var rowsOut []types.Embedding
		err := g.withRetry(ctx, func() error {
			rows, err := g.commons.QueryContext(ctx, query, args...)
			if err != nil {
				return err
			}
			defer rows.Close()
			rowsOut = rowsOut[:0]
			for rows.Next() {
				var e types.Embedding
				var fileName string
				var ignoredNamespaceName string
				if err := rows.Scan(&e.Wiki, &e.PageID, &e.PageNamespaceID, &ignoredNamespaceName, &e.PageTitle, &fileName); err != nil {
					return err
				}
				e.FileName = types.FileName(fileName)
				rowsOut = append(rowsOut, e)
			}
			return rows.Err()
		})
		if err != nil {
			return nil, baglamaerr.Wrap("get_embeddings_for_files", err)
		}
		out = append(out, rowsOut...)
	}
	return out, nil
}
