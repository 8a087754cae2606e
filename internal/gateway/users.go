package gateway

import (
	"context"

	"github.com/magnusmanske/baglama2-go/internal/baglamaerr"
	"github.com/magnusmanske/baglama2-go/internal/types"
)

// GetFilesFromUser returns the file titles uploaded by name, used when a
// Group is user-based (spec §4.1, §4.5 step 2).
func (g *Gateway) GetFilesFromUser(ctx context.Context, name string) ([]types.FileName, error) {
	var files []types.FileName
	err := g.withRetry(ctx, func() error {
		rows, err := g.commons.QueryContext(ctx, `
			SELECT img_name FROM image
			JOIN actor ON actor_id = img_actor
			WHERE actor_name = ?`, name)
		if err != nil {
			return err
		}
		defer rows.Close()
		files = files[:0]
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			files = append(files, types.FileName(name))
		}
		return rows.Err()
	})
	if err != nil {
		return nil, baglamaerr.Wrap("get_files_from_user", err)
	}
	return files, nil
}
