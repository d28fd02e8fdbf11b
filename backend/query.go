////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package backend

import (
	"context"
	"strconv"
	"strings"
)

const restPath = "/rest/v1/"

// Query builds a call against one table of the REST API. Filters are ANDed.
// A Query is not safe for concurrent use; build one per call.
type Query struct {
	c     *Client
	table string
	args  [][2]string
}

// From starts a query on the table.
func (c *Client) From(table string) *Query {
	return &Query{c: c, table: table}
}

// Select sets the returned columns, e.g. "*, profiles(*)".
func (q *Query) Select(columns string) *Query {
	return q.arg("select", columns)
}

// Eq filters on column = value.
func (q *Query) Eq(column, value string) *Query {
	return q.arg(column, "eq."+value)
}

// Neq filters on column != value.
func (q *Query) Neq(column, value string) *Query {
	return q.arg(column, "neq."+value)
}

// Is filters on column IS value, where value is null, true or false.
func (q *Query) Is(column, value string) *Query {
	return q.arg(column, "is."+value)
}

// In filters on column being one of values.
func (q *Query) In(column string, values []string) *Query {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return q.arg(column, "in.("+strings.Join(quoted, ",")+")")
}

// Or filters on any of the conditions, given in the REST API's syntax, e.g.
// "sender_id.eq.a,receiver_id.eq.a".
func (q *Query) Or(conditions string) *Query {
	return q.arg("or", "("+conditions+")")
}

// Order sorts by the column.
func (q *Query) Order(column string, ascending bool) *Query {
	dir := "desc"
	if ascending {
		dir = "asc"
	}
	return q.arg("order", column+"."+dir)
}

// Limit caps the number of rows.
func (q *Query) Limit(n int) *Query {
	return q.arg("limit", strconv.Itoa(n))
}

func (q *Query) arg(k, v string) *Query {
	q.args = append(q.args, [2]string{k, v})
	return q
}

func (q *Query) request(m Method) request {
	return request{
		method:  m,
		url:     q.c.params.URL + restPath + q.table,
		args:    q.args,
		headers: map[string]string{},
	}
}

// Get decodes every matching row into out, which must point to a slice.
func (q *Query) Get(ctx context.Context, out interface{}) error {
	return q.c.doJSON(ctx, q.request(Get), nil, out)
}

// Single decodes the one matching row into out. It fails with a CodeNotFound
// error if no row, or more than one, matches.
func (q *Query) Single(ctx context.Context, out interface{}) error {
	r := q.request(Get)
	r.headers["Accept"] = "application/vnd.pgrst.object+json"
	return q.c.doJSON(ctx, r, nil, out)
}

// Insert creates rows, a single struct or a slice. The created rows are
// decoded into out, if set. All rows of one call are inserted in one
// transaction.
func (q *Query) Insert(ctx context.Context, rows, out interface{}) error {
	r := q.request(Post)
	r.headers["Prefer"] = preferReturn(out)
	return q.c.doJSON(ctx, r, rows, out)
}

// Upsert creates rows or merges them into the rows they conflict with on
// the given columns.
func (q *Query) Upsert(ctx context.Context, onConflict string, rows,
	out interface{}) error {
	r := q.request(Post)
	r.args = append(r.args, [2]string{"on_conflict", onConflict})
	r.headers["Prefer"] = "resolution=merge-duplicates," + preferReturn(out)
	return q.c.doJSON(ctx, r, rows, out)
}

// Update applies the patch to every matching row. The updated rows are
// decoded into out, if set.
func (q *Query) Update(ctx context.Context, patch, out interface{}) error {
	r := q.request(Patch)
	r.headers["Prefer"] = preferReturn(out)
	return q.c.doJSON(ctx, r, patch, out)
}

// Delete removes every matching row.
func (q *Query) Delete(ctx context.Context) error {
	return q.c.doJSON(ctx, q.request(Delete), nil, nil)
}

func preferReturn(out interface{}) string {
	if out == nil {
		return "return=minimal"
	}
	return "return=representation"
}
