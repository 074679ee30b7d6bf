package domain

var Tables = []interface{}{
	&CatalogEntry{},
	&PendingCreateRequest{},
}
