// Package parser implements the streaming OpenAPI 3.x parser. It walks the
// document token by token and emits typed records as they close, holding at
// most one path item's operations in flight, so specifications larger than
// memory still parse.
//
// Usage follows the bufio.Scanner shape:
//
//	p := parser.New(r)
//	for p.Next() {
//		switch rec := p.Record().(type) {
//		case *types.Endpoint:
//			...
//		}
//	}
//	if err := p.Err(); err != nil { ... }
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/apperrors"
	"github.com/salacoste/openapi-mcp-swagger-sub001/pkg/types"
)

// maxWarnings caps the recoverable-warning buffer; the channel is lossy.
const maxWarnings = 100

type frame int

const (
	frameRoot frame = iota
	framePaths
	framePathItem
	frameComponents
	frameSchemas
	frameSecuritySchemes
	frameTags
	frameTagGroups
)

// Parser streams records out of one OpenAPI JSON document.
type Parser struct {
	dec   *json.Decoder
	stack []frame

	queue  []interface{}
	record interface{}

	warnings        []types.ParseWarning
	droppedWarnings int

	err      error
	started  bool
	finished bool

	// path item accumulation: operations wait here until the item closes so
	// path-level parameters seen late still merge in
	currentPath string
	pathParams  []types.Parameter
	pathOps     []*types.Endpoint
	pendingIdx  map[string]int
	seenOps     map[string]bool

	// root-level accumulation for the ApiInfo record
	info     infoJSON
	servers  []string
	security []types.SecurityRequirement
}

// New creates a parser reading one JSON document from r.
func New(r io.Reader) *Parser {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &Parser{
		dec:     dec,
		seenOps: make(map[string]bool),
	}
}

// Next advances to the next record. It returns false at the end of the
// document or on a fatal error; check Err afterwards.
func (p *Parser) Next() bool {
	if p.err != nil {
		return false
	}
	for len(p.queue) == 0 {
		if p.finished {
			return false
		}
		if err := p.step(); err != nil {
			p.err = err
			return false
		}
	}
	p.record = p.queue[0]
	p.queue = p.queue[1:]
	return true
}

// Record returns the current record: one of *types.APIInfo,
// *types.TagDefinition, *types.TagGroupDefinition, *types.Endpoint,
// *types.Schema, *types.SecurityScheme.
func (p *Parser) Record() interface{} {
	return p.record
}

// Err returns the fatal error that stopped parsing, or nil.
func (p *Parser) Err() error {
	return p.err
}

// Warnings returns the recoverable warnings collected so far.
func (p *Parser) Warnings() []types.ParseWarning {
	return p.warnings
}

func (p *Parser) step() error {
	if !p.started {
		tok, err := p.dec.Token()
		if err != nil {
			return p.fatal(err)
		}
		if d, ok := tok.(json.Delim); !ok || d != '{' {
			return p.fatal(fmt.Errorf("specification must be a JSON object, got %v", tok))
		}
		p.started = true
		p.stack = append(p.stack, frameRoot)
		return nil
	}

	switch p.top() {
	case frameRoot:
		return p.stepRoot()
	case framePaths:
		return p.stepPaths()
	case framePathItem:
		return p.stepPathItem()
	case frameComponents:
		return p.stepComponents()
	case frameSchemas:
		return p.stepSchemas()
	case frameSecuritySchemes:
		return p.stepSecuritySchemes()
	case frameTags:
		return p.stepTags()
	case frameTagGroups:
		return p.stepTagGroups()
	default:
		return p.fatal(fmt.Errorf("parser in unknown state"))
	}
}

func (p *Parser) top() frame {
	return p.stack[len(p.stack)-1]
}

func (p *Parser) push(f frame) {
	p.stack = append(p.stack, f)
}

func (p *Parser) pop() {
	p.stack = p.stack[:len(p.stack)-1]
}

func (p *Parser) stepRoot() error {
	tok, err := p.dec.Token()
	if err != nil {
		return p.fatal(err)
	}
	if d, ok := tok.(json.Delim); ok && d == '}' {
		p.pop()
		p.finished = true
		p.queue = append(p.queue, &types.APIInfo{
			Title:       p.info.Title,
			Version:     p.info.Version,
			Description: p.info.Description,
			Servers:     p.servers,
			Security:    p.security,
		})
		return nil
	}

	key, ok := tok.(string)
	if !ok {
		return p.fatal(fmt.Errorf("expected object key, got %v", tok))
	}

	switch key {
	case "info":
		if err := p.decodeTolerant(&p.info, "info"); err != nil {
			return err
		}
	case "servers":
		var servers []serverJSON
		if err := p.decodeTolerant(&servers, "servers"); err != nil {
			return err
		}
		for _, s := range servers {
			if s.URL != "" {
				p.servers = append(p.servers, s.URL)
			}
		}
	case "security":
		if err := p.decodeTolerant(&p.security, "security"); err != nil {
			return err
		}
	case "tags":
		return p.enterCollection(frameTags, '[')
	case "x-tagGroups":
		return p.enterCollection(frameTagGroups, '[')
	case "paths":
		return p.enterCollection(framePaths, '{')
	case "components":
		return p.enterCollection(frameComponents, '{')
	default:
		return p.skipValue()
	}
	return nil
}

// enterCollection pushes f if the next value opens with the expected
// delimiter; any other value shape is skipped.
func (p *Parser) enterCollection(f frame, open json.Delim) error {
	tok, err := p.dec.Token()
	if err != nil {
		return p.fatal(err)
	}
	d, ok := tok.(json.Delim)
	if !ok {
		// scalar where a collection belongs; the token is already consumed
		return nil
	}
	if d == open {
		p.push(f)
		return nil
	}
	return p.skipBalanced(d)
}

func (p *Parser) stepTags() error {
	if p.dec.More() {
		var tag tagJSON
		if err := p.decodeTolerant(&tag, "tags"); err != nil {
			return err
		}
		if tag.Name == "" {
			p.warn("tag definition without a name skipped", "tags")
			return nil
		}
		p.queue = append(p.queue, &types.TagDefinition{
			Name:        tag.Name,
			Description: tag.Description,
			DisplayName: tag.DisplayName,
		})
		return nil
	}
	return p.closeCollection()
}

func (p *Parser) stepTagGroups() error {
	if p.dec.More() {
		var group tagGroupJSON
		if err := p.decodeTolerant(&group, "x-tagGroups"); err != nil {
			return err
		}
		if group.Name == "" {
			p.warn("tag group without a name skipped", "x-tagGroups")
			return nil
		}
		p.queue = append(p.queue, &types.TagGroupDefinition{
			Name: group.Name,
			Tags: group.Tags,
		})
		return nil
	}
	return p.closeCollection()
}

func (p *Parser) stepPaths() error {
	tok, err := p.dec.Token()
	if err != nil {
		return p.fatal(err)
	}
	if d, ok := tok.(json.Delim); ok && d == '}' {
		p.pop()
		return nil
	}

	path, ok := tok.(string)
	if !ok {
		return p.fatal(fmt.Errorf("expected path template, got %v", tok))
	}

	tok, err = p.dec.Token()
	if err != nil {
		return p.fatal(err)
	}
	d, ok := tok.(json.Delim)
	if !ok {
		p.warn(fmt.Sprintf("path item for %s is not an object, skipped", path), path)
		return nil
	}
	if d != '{' {
		p.warn(fmt.Sprintf("path item for %s is not an object, skipped", path), path)
		return p.skipBalanced(d)
	}

	p.currentPath = path
	p.pathParams = nil
	p.pathOps = nil
	p.pendingIdx = make(map[string]int)
	p.push(framePathItem)
	return nil
}

func (p *Parser) stepPathItem() error {
	tok, err := p.dec.Token()
	if err != nil {
		return p.fatal(err)
	}
	if d, ok := tok.(json.Delim); ok && d == '}' {
		p.pop()
		p.flushPathItem()
		return nil
	}

	key, ok := tok.(string)
	if !ok {
		return p.fatal(fmt.Errorf("expected path item key for %s, got %v", p.currentPath, tok))
	}

	switch {
	case types.IsHTTPMethod(key):
		var op operationJSON
		if err := p.decodeTolerant(&op, p.currentPath); err != nil {
			return err
		}
		p.addOperation(strings.ToUpper(key), &op)
	case key == "parameters":
		var params []parameterJSON
		if err := p.decodeTolerant(&params, p.currentPath); err != nil {
			return err
		}
		p.pathParams = convertParameters(params)
	case key == "summary" || key == "description" || key == "servers" || key == "$ref":
		return p.skipValue()
	default:
		p.warn(fmt.Sprintf("unknown method %q for path %s skipped", key, p.currentPath), p.currentPath)
		return p.skipValue()
	}
	return nil
}

func (p *Parser) addOperation(method string, op *operationJSON) {
	ep := buildEndpoint(p.currentPath, method, op)
	opKey := method + " " + p.currentPath

	if idx, dup := p.pendingIdx[method]; dup {
		p.warn(fmt.Sprintf("duplicate operation %s, keeping the later definition", opKey), p.currentPath)
		p.pathOps[idx] = ep
		return
	}
	if p.seenOps[opKey] {
		p.warn(fmt.Sprintf("duplicate operation %s, keeping the later definition", opKey), p.currentPath)
	}
	p.seenOps[opKey] = true
	p.pendingIdx[method] = len(p.pathOps)
	p.pathOps = append(p.pathOps, ep)
}

// flushPathItem merges path-level parameters into each held operation and
// emits the operations in document order. Operation parameters win on an
// (in, name) collision.
func (p *Parser) flushPathItem() {
	for _, ep := range p.pathOps {
		if len(p.pathParams) > 0 {
			seen := make(map[string]bool, len(ep.Parameters))
			for _, param := range ep.Parameters {
				seen[param.In+"\x00"+param.Name] = true
			}
			for _, param := range p.pathParams {
				if !seen[param.In+"\x00"+param.Name] {
					ep.Parameters = append(ep.Parameters, param)
				}
			}
		}
		p.queue = append(p.queue, ep)
	}
	p.currentPath = ""
	p.pathParams = nil
	p.pathOps = nil
	p.pendingIdx = nil
}

func (p *Parser) stepComponents() error {
	tok, err := p.dec.Token()
	if err != nil {
		return p.fatal(err)
	}
	if d, ok := tok.(json.Delim); ok && d == '}' {
		p.pop()
		return nil
	}

	key, ok := tok.(string)
	if !ok {
		return p.fatal(fmt.Errorf("expected components key, got %v", tok))
	}

	switch key {
	case "schemas":
		return p.enterCollection(frameSchemas, '{')
	case "securitySchemes":
		return p.enterCollection(frameSecuritySchemes, '{')
	default:
		return p.skipValue()
	}
}

func (p *Parser) stepSchemas() error {
	tok, err := p.dec.Token()
	if err != nil {
		return p.fatal(err)
	}
	if d, ok := tok.(json.Delim); ok && d == '}' {
		p.pop()
		return nil
	}

	name, ok := tok.(string)
	if !ok {
		return p.fatal(fmt.Errorf("expected schema name, got %v", tok))
	}

	var body json.RawMessage
	if err := p.decodeTolerant(&body, "components.schemas."+name); err != nil {
		return err
	}
	p.queue = append(p.queue, &types.Schema{
		Name:       name,
		Body:       body,
		References: CollectRefs(body),
	})
	return nil
}

func (p *Parser) stepSecuritySchemes() error {
	tok, err := p.dec.Token()
	if err != nil {
		return p.fatal(err)
	}
	if d, ok := tok.(json.Delim); ok && d == '}' {
		p.pop()
		return nil
	}

	name, ok := tok.(string)
	if !ok {
		return p.fatal(fmt.Errorf("expected security scheme name, got %v", tok))
	}

	var scheme securitySchemeJSON
	if err := p.decodeTolerant(&scheme, "components.securitySchemes."+name); err != nil {
		return err
	}
	p.queue = append(p.queue, &types.SecurityScheme{
		Name:         name,
		Type:         scheme.Type,
		Scheme:       scheme.Scheme,
		In:           scheme.In,
		ParamName:    scheme.ParamName,
		BearerFormat: scheme.BearerFormat,
		Description:  scheme.Description,
	})
	return nil
}

func (p *Parser) closeCollection() error {
	if _, err := p.dec.Token(); err != nil {
		return p.fatal(err)
	}
	p.pop()
	return nil
}

// decodeTolerant decodes the next value into v. Type mismatches inside the
// value become warnings because the decoder still consumes it; only broken
// JSON is fatal.
func (p *Parser) decodeTolerant(v interface{}, where string) error {
	err := p.dec.Decode(v)
	if err == nil {
		return nil
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		p.warn(fmt.Sprintf("unexpected value shape in %s: %v", where, err), where)
		return nil
	}
	return p.fatal(err)
}

// skipValue consumes and discards the next value.
func (p *Parser) skipValue() error {
	tok, err := p.dec.Token()
	if err != nil {
		return p.fatal(err)
	}
	if d, ok := tok.(json.Delim); ok && (d == '{' || d == '[') {
		return p.skipBalanced(d)
	}
	return nil
}

// skipBalanced discards tokens until the already-consumed open delimiter is
// balanced.
func (p *Parser) skipBalanced(open json.Delim) error {
	if open != '{' && open != '[' {
		return nil
	}
	depth := 1
	for depth > 0 {
		tok, err := p.dec.Token()
		if err != nil {
			return p.fatal(err)
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

func (p *Parser) warn(message, path string) {
	if len(p.warnings) >= maxWarnings {
		p.droppedWarnings++
		return
	}
	p.warnings = append(p.warnings, types.ParseWarning{
		Message: message,
		Path:    path,
		Offset:  p.dec.InputOffset(),
	})
}

// fatal wraps err into the invalid-specification error carrying the byte
// offset where parsing stopped.
func (p *Parser) fatal(err error) error {
	if err == nil {
		return nil
	}
	offset := p.dec.InputOffset()
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		offset = syntaxErr.Offset
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return apperrors.NewInvalidSpecification(offset, err)
}
