package parser

import (
	"strconv"
	"strings"

	"coredb/internal/dberr"
)

// parseCreate dispatches CREATE TABLE / CREATE INDEX, grounded on
// parseCreateTable in the teacher but without the CREATE DATABASE/
// foreign-key surface spec.md's data model doesn't name.
func (p *Parser) parseCreate() (Statement, error) {
	p.nextToken() // CREATE
	switch p.curToken.Kind {
	case TABLE:
		return p.parseCreateTable()
	case INDEX:
		return p.parseCreateIndex()
	default:
		return nil, dberr.Syntax("expected TABLE or INDEX after CREATE")
	}
}

func (p *Parser) parseCreateTable() (*CreateTableStmt, error) {
	p.nextToken() // TABLE
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expect(OPENPAREN); err != nil {
		return nil, err
	}
	p.nextToken()

	var cols []ColumnDef
	for p.curToken.Kind != CLOSEPAREN {
		name, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		typ, length, err := p.parseColumnType()
		if err != nil {
			return nil, err
		}
		// PRIMARY KEY is accepted and ignored: spec §3 has no primary-key
		// concept separate from an index built with CREATE INDEX.
		if p.curToken.Kind == PRIMARY {
			p.nextToken()
			if err := p.expect(KEY); err != nil {
				return nil, err
			}
			p.nextToken()
		}
		cols = append(cols, ColumnDef{Name: name, Type: typ, Len: length})
		if p.curToken.Kind == COMMA {
			p.nextToken()
		}
	}
	p.nextToken() // )
	return &CreateTableStmt{Table: table, Columns: cols}, nil
}

// parseColumnType reads a type name, optionally followed by a parenthesized
// length for STRING(n).
func (p *Parser) parseColumnType() (string, int, error) {
	if p.curToken.Kind != IDENT {
		return "", 0, dberr.Syntax("expected column type, got " + p.curToken.Value)
	}
	typ := strings.ToUpper(p.curToken.Value)
	p.nextToken()
	length := 0
	if p.curToken.Kind == OPENPAREN {
		p.nextToken()
		if p.curToken.Kind != INT {
			return "", 0, dberr.Syntax("expected length, got " + p.curToken.Value)
		}
		n, _ := strconv.Atoi(p.curToken.Value)
		length = n
		p.nextToken()
		if err := p.expect(CLOSEPAREN); err != nil {
			return "", 0, err
		}
		p.nextToken()
	}
	return typ, length, nil
}

func (p *Parser) parseCreateIndex() (*CreateIndexStmt, error) {
	p.nextToken() // INDEX
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	cols, err := p.parseColumnList()
	if err != nil {
		return nil, err
	}
	return &CreateIndexStmt{Table: table, Cols: cols}, nil
}

func (p *Parser) parseColumnList() ([]string, error) {
	if err := p.expect(OPENPAREN); err != nil {
		return nil, err
	}
	p.nextToken()
	var cols []string
	for p.curToken.Kind != CLOSEPAREN {
		col, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
		if p.curToken.Kind == COMMA {
			p.nextToken()
		}
	}
	p.nextToken() // )
	return cols, nil
}

func (p *Parser) parseDrop() (Statement, error) {
	p.nextToken() // DROP
	switch p.curToken.Kind {
	case TABLE:
		p.nextToken()
		table, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		return &DropTableStmt{Table: table}, nil
	case INDEX:
		p.nextToken()
		table, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		cols, err := p.parseColumnList()
		if err != nil {
			return nil, err
		}
		return &DropIndexStmt{Table: table, Cols: cols}, nil
	default:
		return nil, dberr.Syntax("expected TABLE or INDEX after DROP")
	}
}

func (p *Parser) parseShow() (Statement, error) {
	p.nextToken() // SHOW
	switch p.curToken.Kind {
	case TABLES:
		p.nextToken()
		return &ShowTablesStmt{}, nil
	case INDEX:
		p.nextToken()
		table, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		return &ShowIndexStmt{Table: table}, nil
	default:
		return nil, dberr.Syntax("expected TABLES or INDEX after SHOW")
	}
}

func (p *Parser) parseDescribe() (*DescTableStmt, error) {
	p.nextToken() // DESCRIBE
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	return &DescTableStmt{Table: table}, nil
}
