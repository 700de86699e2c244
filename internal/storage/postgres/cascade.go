package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
)

var childTables = map[jobs.ChildTable]bool{
	jobs.TablePageLinks:  true,
	jobs.TablePageImages: true,
	jobs.TablePages:      true,
}

func checkTable(table jobs.ChildTable) error {
	if !childTables[table] {
		return fmt.Errorf("invalid child table %q", table)
	}
	return nil
}

// ListImagePaths returns image rows of the job with id > afterID, ordered by id.
func (s *JobStore) ListImagePaths(ctx context.Context, jobID, afterID int64, limit int) ([]jobs.ImagePath, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, s3_path FROM page_images WHERE job_id = $1 AND id > $2 ORDER BY id LIMIT $3`,
		jobID, afterID, limit)
	if err != nil {
		return nil, jobs.PrimaryError(storeName, "list image paths", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (jobs.ImagePath, error) {
		var p jobs.ImagePath
		err := row.Scan(&p.ID, &p.Path)
		return p, err
	})
	if err != nil {
		return nil, jobs.PrimaryError(storeName, "scan image paths", err)
	}
	return out, nil
}

// ListChildIDs returns up to limit ids of table rows belonging to the job.
func (s *JobStore) ListChildIDs(ctx context.Context, table jobs.ChildTable, jobID int64, limit int) ([]int64, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id FROM %s WHERE job_id = $1 ORDER BY id LIMIT $2`, table)
	rows, err := s.pool.Query(ctx, query, jobID, limit)
	if err != nil {
		return nil, jobs.PrimaryError(storeName, "list "+string(table), err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, jobs.PrimaryError(storeName, "scan "+string(table), err)
	}
	return ids, nil
}

// DeleteChildren deletes exactly ids from table and reports rows affected.
func (s *JobStore) DeleteChildren(ctx context.Context, table jobs.ChildTable, ids []int64) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, table), ids)
	if err != nil {
		return 0, jobs.PrimaryError(storeName, "delete "+string(table), err)
	}
	return tag.RowsAffected(), nil
}
