package model_test

import (
	"testing"

	"github.com/camroulette/signaling/backend/model"
	"github.com/stretchr/testify/assert"
)

func TestFiltersCompatible(t *testing.T) {
	tests := []struct {
		name string
		a    model.Filters
		b    model.Filters
		want bool
	}{
		{
			name: "both wildcards",
			a:    model.Filters{Gender: model.GenderBoth, Country: model.CountryBalanced},
			b:    model.Filters{Gender: model.GenderBoth, Country: model.CountryBalanced},
			want: true,
		},
		{
			name: "one side wildcard",
			a:    model.Filters{Gender: model.GenderBoth, Country: model.CountryBalanced},
			b:    model.Filters{Gender: "female", Country: "de"},
			want: true,
		},
		{
			name: "same specific values",
			a:    model.Filters{Gender: "male", Country: "us"},
			b:    model.Filters{Gender: "male", Country: "us"},
			want: true,
		},
		{
			name: "gender mismatch",
			a:    model.Filters{Gender: "male", Country: model.CountryBalanced},
			b:    model.Filters{Gender: "female", Country: model.CountryBalanced},
			want: false,
		},
		{
			name: "country mismatch",
			a:    model.Filters{Gender: model.GenderBoth, Country: "us"},
			b:    model.Filters{Gender: model.GenderBoth, Country: "de"},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compatible(tt.b))
			// compatibility must hold in both directions
			assert.Equal(t, tt.want, tt.b.Compatible(tt.a))
		})
	}
}

func TestFiltersWithDefaults(t *testing.T) {
	f := model.Filters{}.WithDefaults()
	assert.Equal(t, model.GenderBoth, f.Gender)
	assert.Equal(t, model.CountryBalanced, f.Country)

	f = model.Filters{Gender: "male", Country: "us"}.WithDefaults()
	assert.Equal(t, "male", f.Gender)
	assert.Equal(t, "us", f.Country)
}

func TestRoomRoles(t *testing.T) {
	p1 := model.NewConnection("conn-1", "user-1")
	p2 := model.NewConnection("conn-2", "user-2")
	room := &model.Room{ID: "room-1", P1: p1, P2: p2}

	assert.Equal(t, model.RoleP1, room.RoleOf("conn-1"))
	assert.Equal(t, model.RoleP2, room.RoleOf("conn-2"))
	assert.Empty(t, room.RoleOf("conn-3"))

	assert.Same(t, p2, room.Other("conn-1"))
	assert.Same(t, p1, room.Other("conn-2"))
	assert.Nil(t, room.Other("conn-3"))
}
