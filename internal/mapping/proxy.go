package mapping

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/mesh-intelligence/idmap/pkg/types"
)

// Compile-time interface check: Proxy must implement TableProxy.
var _ types.TableProxy = (*Proxy)(nil)

// Proxy forwards to a MappingTable with a fixed identity type. Endpoint ids
// given to and returned by a Proxy omit the leading type segment.
type Proxy struct {
	table types.MappingTable

	mu  sync.RWMutex
	typ types.IdentityType
}

// NewProxy binds typ to table. It fails with ErrTypeNotFound when the table
// does not serve typ.
func NewProxy(table types.MappingTable, typ types.IdentityType) (*Proxy, error) {
	if !table.IsResponsible(typ) {
		return nil, &types.TypeError{Kind: types.ErrTypeNotFound, Table: table.Name(), Type: typ}
	}
	return &Proxy{table: table, typ: typ}, nil
}

func (p *Proxy) Type() types.IdentityType {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.typ
}

// SetType rebinds the proxy. The table must serve typ.
func (p *Proxy) SetType(typ types.IdentityType) error {
	if !p.table.IsResponsible(typ) {
		return &types.TypeError{Kind: types.ErrTypeNotFound, Table: p.table.Name(), Type: typ}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typ = typ
	return nil
}

func (p *Proxy) Table() types.MappingTable { return p.table }

func (p *Proxy) prefix(typ types.IdentityType) string {
	return strconv.Itoa(int(typ)) + p.table.Delimiter()
}

func (p *Proxy) withType(typ types.IdentityType, endpoint string) string {
	return p.prefix(typ) + endpoint
}

func (p *Proxy) withoutType(typ types.IdentityType, endpoint string) string {
	return strings.TrimPrefix(endpoint, p.prefix(typ))
}

func (p *Proxy) HostID(ctx context.Context, endpoint string) (int64, bool, error) {
	return p.table.HostID(ctx, p.withType(p.Type(), endpoint))
}

func (p *Proxy) Endpoint(ctx context.Context, hostID int64) (string, bool, error) {
	typ := p.Type()
	endpoint, ok, err := p.table.Endpoint(ctx, typ, hostID)
	if err != nil || !ok {
		return "", ok, err
	}
	return p.withoutType(typ, endpoint), true, nil
}

func (p *Proxy) Save(ctx context.Context, endpoint string, hostID int64) (int64, error) {
	return p.table.Save(ctx, p.withType(p.Type(), endpoint), hostID)
}

// Delete removes endpoint, or every row of the bound type when endpoint is empty.
func (p *Proxy) Delete(ctx context.Context, endpoint string, hostID *int64) (int64, error) {
	typ := p.Type()
	if endpoint != "" {
		endpoint = p.withType(typ, endpoint)
	}
	return p.table.Delete(ctx, typ, endpoint, hostID)
}

// Clear removes every row of the bound type.
func (p *Proxy) Clear(ctx context.Context) (int64, error) {
	typ := p.Type()
	return p.table.Clear(ctx, &typ)
}

func (p *Proxy) Count(ctx context.Context, opts types.FindOptions) (int64, error) {
	typ := p.Type()
	opts.Type = &typ
	return p.table.Count(ctx, opts)
}

func (p *Proxy) FindEndpoints(ctx context.Context, opts types.FindOptions) ([]string, error) {
	typ := p.Type()
	opts.Type = &typ
	endpoints, err := p.table.FindEndpoints(ctx, opts)
	if err != nil {
		return nil, err
	}
	for i, e := range endpoints {
		endpoints[i] = p.withoutType(typ, e)
	}
	return endpoints, nil
}

func (p *Proxy) FilterMapped(ctx context.Context, candidates []string) ([]string, error) {
	typ := p.Type()
	typed := make([]string, len(candidates))
	for i, c := range candidates {
		typed[i] = p.withType(typ, c)
	}
	unmapped, err := p.table.FilterMapped(ctx, typed)
	if err != nil {
		return nil, err
	}
	for i, e := range unmapped {
		unmapped[i] = p.withoutType(typ, e)
	}
	return unmapped, nil
}
