package places

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	// NearbyRadiusMeters and NearbyLimit bound location-based search.
	NearbyRadiusMeters = 10000
	NearbyLimit        = 5

	earthRadiusMeters = 6371000.0
)

// GeoIndex returns ids of the cities closest to a point, nearest first.
type GeoIndex interface {
	Nearby(ctx context.Context, lat, lng, radiusMeters float64, limit int) ([]int64, error)
}

type point struct {
	id       int64
	lat, lng float64
}

// MemoryGeo is a linear-scan GeoIndex over the catalog's city coordinates.
type MemoryGeo struct {
	points []point
}

func NewMemoryGeo(cities []City) *MemoryGeo {
	g := &MemoryGeo{}
	for _, city := range cities {
		if city.Lat == nil || city.Lng == nil {
			continue
		}
		g.points = append(g.points, point{id: city.ID, lat: *city.Lat, lng: *city.Lng})
	}
	return g
}

func (g *MemoryGeo) Nearby(_ context.Context, lat, lng, radiusMeters float64, limit int) ([]int64, error) {
	type hit struct {
		id   int64
		dist float64
	}
	var hits []hit
	for _, p := range g.points {
		d := haversine(lat, lng, p.lat, p.lng)
		if d <= radiusMeters {
			hits = append(hits, hit{id: p.id, dist: d})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].id < hits[j].id
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]int64, len(hits))
	for i, h := range hits {
		out[i] = h.id
	}
	return out, nil
}

func haversine(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// RedisGeo keeps city coordinates in a redis GEO set.
type RedisGeo struct {
	client *redis.Client
	key    string
}

func NewRedisGeo(client *redis.Client, key string) *RedisGeo {
	if key == "" {
		key = "geo:cities"
	}
	return &RedisGeo{client: client, key: key}
}

// Load replaces the GEO set with the given cities.
func (g *RedisGeo) Load(ctx context.Context, cities []City) error {
	locations := make([]*redis.GeoLocation, 0, len(cities))
	for _, city := range cities {
		if city.Lat == nil || city.Lng == nil {
			continue
		}
		locations = append(locations, &redis.GeoLocation{
			Name:      strconv.FormatInt(city.ID, 10),
			Latitude:  *city.Lat,
			Longitude: *city.Lng,
		})
	}
	if err := g.client.Del(ctx, g.key).Err(); err != nil {
		return fmt.Errorf("reset geo set: %w", err)
	}
	if len(locations) == 0 {
		return nil
	}
	if err := g.client.GeoAdd(ctx, g.key, locations...).Err(); err != nil {
		return fmt.Errorf("geoadd cities: %w", err)
	}
	return nil
}

func (g *RedisGeo) Nearby(ctx context.Context, lat, lng, radiusMeters float64, limit int) ([]int64, error) {
	members, err := g.client.GeoSearch(ctx, g.key, &redis.GeoSearchQuery{
		Longitude:  lng,
		Latitude:   lat,
		Radius:     radiusMeters,
		RadiusUnit: "m",
		Sort:       "ASC",
		Count:      limit,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("geosearch cities: %w", err)
	}
	out := make([]int64, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}
