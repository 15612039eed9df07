package parser

import (
	"strconv"
	"strings"

	"coredb/internal/dberr"
)

// Parser turns a token stream into one Statement. Grounded on parser.Parser
// in the teacher: cur/peek one-token lookahead, advanced by nextToken,
// generalized from the teacher's panic-on-malformed-input style (seen in
// parse_select.go/parse_dml.go) to returning a dberr.Syntax error the way
// parse_ddl.go already does for CREATE TABLE, so a bad statement from a
// client never takes the whole connection down.
type Parser struct {
	l         *Lexer
	curToken  Token
	peekToken Token
}

func New(input string) *Parser {
	p := &Parser{l: NewLexer(input)}
	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) expect(kind TokenKind) error {
	if p.curToken.Kind != kind {
		return dberr.Syntax("unexpected token " + p.curToken.Value)
	}
	return nil
}

// Parse reads exactly one statement, consuming an optional trailing
// semicolon.
func Parse(input string) (Statement, error) {
	p := New(input)
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if p.curToken.Kind == SEMICOLON {
		p.nextToken()
	}
	if p.curToken.Kind != END {
		return nil, dberr.Syntax("unexpected trailing token " + p.curToken.Value)
	}
	return stmt, nil
}

func (p *Parser) parseStatement() (Statement, error) {
	switch p.curToken.Kind {
	case SELECT:
		return p.parseSelect()
	case INSERT:
		return p.parseInsert()
	case UPDATE:
		return p.parseUpdate()
	case DELETE:
		return p.parseDelete()
	case CREATE:
		return p.parseCreate()
	case DROP:
		return p.parseDrop()
	case SHOW:
		return p.parseShow()
	case DESCRIBE:
		return p.parseDescribe()
	case BEGIN:
		p.nextToken()
		return &BeginStmt{}, nil
	case COMMIT:
		p.nextToken()
		return &CommitStmt{}, nil
	case ABORT:
		p.nextToken()
		return &AbortStmt{}, nil
	default:
		return nil, dberr.Syntax("unexpected token " + p.curToken.Value)
	}
}

func (p *Parser) parseIdent() (string, error) {
	if p.curToken.Kind != IDENT {
		return "", dberr.Syntax("expected identifier, got " + p.curToken.Value)
	}
	name := p.curToken.Value
	p.nextToken()
	return name, nil
}

// parseQualifiedIdent accepts table.column or column, grounded on
// parseQualifiedIdentifier in the teacher; the table qualifier is
// discarded since every table in a plan carries its own column set.
func (p *Parser) parseQualifiedIdent() (string, error) {
	name, err := p.parseIdent()
	if err != nil {
		return "", err
	}
	if p.curToken.Kind == DOT {
		p.nextToken()
		col, err := p.parseIdent()
		if err != nil {
			return "", err
		}
		return col, nil
	}
	return name, nil
}

func (p *Parser) parseLiteral() (any, error) {
	switch p.curToken.Kind {
	case INT:
		n, err := strconv.ParseInt(p.curToken.Value, 10, 64)
		if err != nil {
			return nil, dberr.Syntax("bad integer literal " + p.curToken.Value)
		}
		p.nextToken()
		return n, nil
	case FLOAT:
		f, err := strconv.ParseFloat(p.curToken.Value, 64)
		if err != nil {
			return nil, dberr.Syntax("bad float literal " + p.curToken.Value)
		}
		p.nextToken()
		return f, nil
	case STRING:
		s := p.curToken.Value
		p.nextToken()
		return s, nil
	default:
		return nil, dberr.Syntax("expected literal, got " + p.curToken.Value)
	}
}

func cmpOpFor(kind TokenKind) (CmpOp, bool) {
	switch kind {
	case EQ:
		return OpEq, true
	case NEQ:
		return OpNe, true
	case LT:
		return OpLt, true
	case LE:
		return OpLe, true
	case GT:
		return OpGt, true
	case GE:
		return OpGe, true
	default:
		return 0, false
	}
}

// parseWhere parses a WHERE clause as a conjunction of comparisons,
// generalized from the teacher's single `col = val` WHERE to AND-chained
// predicates with the full comparison set internal/exec's scans need.
func (p *Parser) parseWhere() ([]Cond, error) {
	var conds []Cond
	for {
		col, err := p.parseQualifiedIdent()
		if err != nil {
			return nil, err
		}
		op, ok := cmpOpFor(p.curToken.Kind)
		if !ok {
			return nil, dberr.Syntax("expected comparison operator, got " + p.curToken.Value)
		}
		p.nextToken()
		val, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		conds = append(conds, Cond{Col: col, Op: op, Value: val})
		if p.curToken.Kind == AND {
			p.nextToken()
			continue
		}
		break
	}
	return conds, nil
}

func (p *Parser) parseSelect() (*SelectStmt, error) {
	p.nextToken() // SELECT

	var cols []string
	var aggs []AggTerm
	if p.curToken.Kind == ASTERISK {
		cols = []string{"*"}
		p.nextToken()
	} else {
		for {
			if agg, ok, err := p.tryParseAgg(); err != nil {
				return nil, err
			} else if ok {
				aggs = append(aggs, agg)
			} else {
				col, err := p.parseQualifiedIdent()
				if err != nil {
					return nil, err
				}
				cols = append(cols, col)
			}
			if p.curToken.Kind == COMMA {
				p.nextToken()
				continue
			}
			break
		}
	}

	if err := p.expect(FROM); err != nil {
		return nil, err
	}
	p.nextToken()
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}

	var join *Join
	if p.curToken.Kind == JOIN {
		p.nextToken()
		joinTable, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expect(ON); err != nil {
			return nil, err
		}
		p.nextToken()
		leftCol, err := p.parseQualifiedIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expect(EQ); err != nil {
			return nil, err
		}
		p.nextToken()
		rightCol, err := p.parseQualifiedIdent()
		if err != nil {
			return nil, err
		}
		join = &Join{Table: joinTable, LeftCol: leftCol, RightCol: rightCol}
	}

	var where []Cond
	if p.curToken.Kind == WHERE {
		p.nextToken()
		where, err = p.parseWhere()
		if err != nil {
			return nil, err
		}
	}

	var orderBy []OrderTerm
	if p.curToken.Kind == ORDER {
		p.nextToken()
		if err := p.expect(BY); err != nil {
			return nil, err
		}
		p.nextToken()
		for {
			col, err := p.parseQualifiedIdent()
			if err != nil {
				return nil, err
			}
			desc := false
			if p.curToken.Kind == DESC {
				desc = true
				p.nextToken()
			} else if p.curToken.Kind == ASC {
				p.nextToken()
			}
			orderBy = append(orderBy, OrderTerm{Col: col, Descending: desc})
			if p.curToken.Kind == COMMA {
				p.nextToken()
				continue
			}
			break
		}
	}

	var limit *int
	if p.curToken.Kind == LIMIT {
		p.nextToken()
		if p.curToken.Kind != INT {
			return nil, dberr.Syntax("expected integer after LIMIT")
		}
		n, _ := strconv.Atoi(p.curToken.Value)
		limit = &n
		p.nextToken()
	}

	return &SelectStmt{
		Columns: cols, Aggs: aggs, Table: table, Join: join,
		Where: where, OrderBy: orderBy, Limit: limit,
	}, nil
}

func (p *Parser) tryParseAgg() (AggTerm, bool, error) {
	var fn AggFunc
	switch strings.ToUpper(p.curToken.Value) {
	case "SUM":
		fn = AggSum
	case "MIN":
		fn = AggMin
	case "MAX":
		fn = AggMax
	case "COUNT":
		fn = AggCount
	default:
		return AggTerm{}, false, nil
	}
	if p.curToken.Kind != IDENT || p.peekToken.Kind != OPENPAREN {
		return AggTerm{}, false, nil
	}
	p.nextToken() // function name
	p.nextToken() // (
	if fn == AggCount && p.curToken.Kind == ASTERISK {
		p.nextToken()
		if err := p.expect(CLOSEPAREN); err != nil {
			return AggTerm{}, false, err
		}
		p.nextToken()
		return AggTerm{Func: AggCountStar}, true, nil
	}
	col, err := p.parseQualifiedIdent()
	if err != nil {
		return AggTerm{}, false, err
	}
	if err := p.expect(CLOSEPAREN); err != nil {
		return AggTerm{}, false, err
	}
	p.nextToken()
	return AggTerm{Func: fn, Col: col}, true, nil
}

func (p *Parser) parseInsert() (*InsertStmt, error) {
	p.nextToken() // INSERT
	if err := p.expect(INTO); err != nil {
		return nil, err
	}
	p.nextToken()
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expect(VALUES); err != nil {
		return nil, err
	}
	p.nextToken()
	if err := p.expect(OPENPAREN); err != nil {
		return nil, err
	}
	p.nextToken()

	var values []any
	for p.curToken.Kind != CLOSEPAREN {
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		if p.curToken.Kind == COMMA {
			p.nextToken()
		}
	}
	p.nextToken() // )
	return &InsertStmt{Table: table, Values: values}, nil
}

func (p *Parser) parseUpdate() (*UpdateStmt, error) {
	p.nextToken() // UPDATE
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expect(SET); err != nil {
		return nil, err
	}
	p.nextToken()

	var assigns []Assignment
	for {
		col, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expect(EQ); err != nil {
			return nil, err
		}
		p.nextToken()

		// col = col + literal
		if p.curToken.Kind == IDENT && strings.EqualFold(p.curToken.Value, col) && p.peekToken.Value == "+" {
			p.nextToken() // col
			p.nextToken() // +
			v, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			assigns = append(assigns, Assignment{Col: col, Value: v, AddToSelf: true})
		} else {
			v, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			assigns = append(assigns, Assignment{Col: col, Value: v})
		}

		if p.curToken.Kind == COMMA {
			p.nextToken()
			continue
		}
		break
	}

	var where []Cond
	if p.curToken.Kind == WHERE {
		p.nextToken()
		where, err = p.parseWhere()
		if err != nil {
			return nil, err
		}
	}
	return &UpdateStmt{Table: table, Assignments: assigns, Where: where}, nil
}

func (p *Parser) parseDelete() (*DeleteStmt, error) {
	p.nextToken() // DELETE
	if err := p.expect(FROM); err != nil {
		return nil, err
	}
	p.nextToken()
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	var where []Cond
	if p.curToken.Kind == WHERE {
		p.nextToken()
		where, err = p.parseWhere()
		if err != nil {
			return nil, err
		}
	}
	return &DeleteStmt{Table: table, Where: where}, nil
}
