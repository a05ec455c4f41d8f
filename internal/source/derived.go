package source

import (
	"maps"

	"github.com/atlekbai/source_registry/internal/query"
)

// FromQuery builds a descriptor whose text is the compiled origin query.
//
// The produced columns are the origin's projection and annotations; every
// translation target counts as produced too. Null columns are whatever the
// target entity declares beyond that, computed when the descriptor is bound.
func FromQuery(origin query.Builder, translations map[string]string) (*Descriptor, error) {
	if err := origin.Err(); err != nil {
		return nil, configErrorf("derived source over %s: %v", origin.Entity().Name, err)
	}
	sqlText, args, err := origin.ToSqlFormat(nil)
	if err != nil {
		return nil, configErrorf("derived source over %s: %v", origin.Entity().Name, err)
	}

	d := &Descriptor{
		text:         "(" + sqlText + ")",
		params:       args,
		translations: maps.Clone(translations),
		produced:     origin.ProducedColumns(),
		derived:      true,
	}
	if d.translations == nil {
		d.translations = map[string]string{}
	}
	if err := d.checkTranslations(); err != nil {
		return nil, err
	}
	return d, nil
}
