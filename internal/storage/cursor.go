package storage

import "context"

// Cursor walks recipients in registration (Seq) order. The first page skips the
// requested number of rows; later pages continue after the last Seq seen, so
// deleting already visited recipients never shifts the walk.
type Cursor struct {
	src      RecipientStore
	skip     int
	pageSize int

	lastSeq int64
	hasLast bool
	buf     []Recipient
	pos     int
	done    bool
	err     error
	cur     Recipient
}

func NewCursor(src RecipientStore, skip, pageSize int) *Cursor {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &Cursor{src: src, skip: max(skip, 0), pageSize: pageSize}
}

// Next advances to the next recipient. It returns false at the end or on
// error; check Err afterwards.
func (c *Cursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if c.pos >= len(c.buf) {
		if c.done {
			return false
		}
		p := Page{AfterSeq: c.lastSeq, HasAfter: c.hasLast, Limit: c.pageSize}
		if !c.hasLast {
			p.Skip = c.skip
		}
		page, err := c.src.ListRecipients(ctx, p)
		if err != nil {
			c.err = err
			return false
		}
		c.buf, c.pos = page, 0
		c.done = len(page) < c.pageSize
		if len(page) == 0 {
			return false
		}
	}
	c.cur = c.buf[c.pos]
	c.pos++
	c.lastSeq, c.hasLast = c.cur.Seq, true
	return true
}

func (c *Cursor) Recipient() Recipient { return c.cur }

func (c *Cursor) Err() error { return c.err }
