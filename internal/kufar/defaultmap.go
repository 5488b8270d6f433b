package kufar

import "kufar_bot/internal/model"

// defaultFilterMap covers the static filter parameters of the kufar listing
// pages. It is the degraded-mode map used when a host's parameter map cannot
// be resolved, so a subscriber's sync keeps working with known parameters.
var defaultFilterMap = model.FilterMap{
	"cat": "Категория",
	"cur": "Валюта",
	"prc": "Цена",
	"rms": "Количество комнат",
	"typ": "Тип сделки",
	"cnd": "Состояние",
	"rgn": "Область",
	"ar":  "Район",
	"gbx": "Границы поиска на карте",
	"flr": "Этаж",
	"sqm": "Площадь",
	"oph": "Только с фото",
	"prn": "Продавец",
}

// DefaultFilterMap returns a copy of the built-in fallback filter map.
func DefaultFilterMap() model.FilterMap {
	m := make(model.FilterMap, len(defaultFilterMap))
	for k, v := range defaultFilterMap {
		m[k] = v
	}
	return m
}
