package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mpapenbr/simracecenter-agent-go/pkg/model"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/repository"
)

// Create stores row. Returns false if a message with the same id exists.
func Create(ctx context.Context, conn repository.Querier, row *model.ChatRow) (bool, error) {
	cmdTag, err := conn.Exec(ctx, `
	insert into chat_messages (id, username, message, avatar_url, yt_type, ts_iso, ts, day)
	values ($1,$2,$3,$4,$5,$6,$7,$8)
	on conflict (id) do nothing`,
		row.ID, row.Username, row.Message, row.AvatarURL, row.YtType,
		row.TsISO, row.Ts, row.Day)
	if err != nil {
		return false, err
	}
	return cmdTag.RowsAffected() == 1, nil
}

func LoadByID(ctx context.Context, conn repository.Querier, id string) (*model.ChatRow, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf("%s where id=$1", selector), id)
	var item model.ChatRow
	if err := scan(&item, row); err != nil {
		return nil, err
	}
	return &item, nil
}

// Search runs a full text search on the message text, best matches first.
// username and day are ignored when empty.
//
//nolint:whitespace // can't make both editor and linter happy
func Search(
	ctx context.Context,
	conn repository.Querier,
	text, username, day string,
	limit int,
) ([]model.ChatHit, error) {
	conds := []string{"search @@ websearch_to_tsquery('simple', $1)"}
	args := []any{text}
	if username != "" {
		args = append(args, username)
		conds = append(conds, fmt.Sprintf("username=$%d", len(args)))
	}
	if day != "" {
		args = append(args, day)
		conds = append(conds, fmt.Sprintf("day=$%d", len(args)))
	}
	args = append(args, limit)
	query := fmt.Sprintf(`
	select id, username, message, ts_iso, ts,
		ts_rank(search, websearch_to_tsquery('simple', $1)) as score
	from chat_messages
	where %s
	order by score desc, ts desc
	limit $%d`, strings.Join(conds, " and "), len(args))

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ret := make([]model.ChatHit, 0)
	for rows.Next() {
		var hit model.ChatHit
		var score float32
		if err := rows.Scan(&hit.ID, &hit.Username, &hit.Message,
			&hit.Timestamp, &hit.Epoch, &score); err != nil {
			return nil, err
		}
		hit.Score = float64(score)
		ret = append(ret, hit)
	}
	return ret, rows.Err()
}

// deletes all chat messages, returns number of rows deleted.
func DeleteAll(ctx context.Context, conn repository.Querier) (int, error) {
	cmdTag, err := conn.Exec(ctx, "delete from chat_messages")
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

// little helper
const selector = string(`select id, username, message, avatar_url, yt_type,
	ts_iso, ts, day from chat_messages`)

func scan(e *model.ChatRow, row pgx.Row) error {
	return row.Scan(&e.ID, &e.Username, &e.Message, &e.AvatarURL, &e.YtType,
		&e.TsISO, &e.Ts, &e.Day)
}
