package server

import (
	"context"
	"errors"
	"image"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pspoerri/tileview/internal/coord"
	"github.com/pspoerri/tileview/internal/mapview"
	"github.com/pspoerri/tileview/internal/tile"
)

type geoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type planarPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type viewportResponse struct {
	Projection string      `json:"projection"`
	Center     geoPoint    `json:"center"`
	Planar     planarPoint `json:"planar"`
	Zoom       int         `json:"zoom"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Rotation   float64     `json:"rotation"`
	// MetersPerPixel is the ground resolution at the center.
	MetersPerPixel float64 `json:"meters_per_pixel"`
}

// viewportRequest sizes are bounded by mapview.MaxSide.
type viewportRequest struct {
	Lat      *float64 `json:"lat" binding:"required,gte=-90,lte=90"`
	Lon      *float64 `json:"lon" binding:"required,gte=-180,lte=180"`
	Zoom     *int     `json:"zoom" binding:"required,gte=0,lte=22"`
	Width    int      `json:"width" binding:"required,gt=0,lte=16384"`
	Height   int      `json:"height" binding:"required,gt=0,lte=16384"`
	Rotation float64  `json:"rotation"`
}

type panRequest struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

type zoomRequest struct {
	// Zoom sets an absolute level; otherwise Delta is applied.
	Zoom  *int `json:"zoom" binding:"omitempty,gte=0,lte=22"`
	Delta int  `json:"delta"`
}

type rotateRequest struct {
	Degrees *float64 `json:"degrees" binding:"required"`
}

type bound struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

type tileEntry struct {
	Key   string `json:"key"`
	Z     int    `json:"z"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	State string `json:"state"`
	Bound bound  `json:"bound"`
}

type statsResponse struct {
	Tiles      int            `json:"tiles"`
	Levels     []int          `json:"levels"`
	States     map[string]int `json:"states"`
	QueueDepth int            `json:"queue_depth"`
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) viewport() viewportResponse {
	vp := s.m.Viewport()
	proj := s.m.Projection()
	center := proj.ToGeo(vp.Center)
	res := proj.Resolution(vp.Zoom)
	if proj.EPSG() == 3857 {
		res = coord.GroundResolution(center.Lat, vp.Zoom)
	}
	return viewportResponse{
		Projection: proj.Name(),
		Center:     geoPoint{Lat: center.Lat, Lon: center.Lon},
		Planar:     planarPoint{X: vp.Center.X, Y: vp.Center.Y},
		Zoom:       vp.Zoom,
		Width:      vp.Width,
		Height:     vp.Height,
		Rotation:   vp.Rotation,

		MetersPerPixel: res,
	}
}

func (s *Server) getViewport(c *gin.Context) {
	c.JSON(http.StatusOK, s.viewport())
}

func (s *Server) putViewport(c *gin.Context) {
	var req viewportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	vp := tile.Viewport{
		Center:   s.m.Projection().ToPlanar(coord.GeoPoint{Lat: *req.Lat, Lon: *req.Lon}),
		Width:    req.Width,
		Height:   req.Height,
		Rotation: req.Rotation,
		Zoom:     *req.Zoom,
	}
	s.command(c, func(ctx context.Context) error { return s.m.SetViewport(ctx, vp) })
}

func (s *Server) pan(c *gin.Context) {
	var req panRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.command(c, func(ctx context.Context) error { return s.m.Pan(ctx, req.DX, req.DY) })
}

func (s *Server) zoom(c *gin.Context) {
	var req zoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.command(c, func(ctx context.Context) error {
		if req.Zoom != nil {
			return s.m.ZoomTo(ctx, *req.Zoom)
		}
		return s.m.ZoomBy(ctx, req.Delta)
	})
}

func (s *Server) rotate(c *gin.Context) {
	var req rotateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.command(c, func(ctx context.Context) error { return s.m.Rotate(ctx, *req.Degrees) })
}

func (s *Server) reset(c *gin.Context) {
	s.command(c, s.m.Reset)
}

// command runs fn against the map and answers with the resulting viewport.
func (s *Server) command(c *gin.Context, fn func(ctx context.Context) error) {
	err := fn(c.Request.Context())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, s.viewport())
	case errors.Is(err, mapview.ErrInvalidZoom), errors.Is(err, mapview.ErrInvalidSize):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	}
}

func (s *Server) stats(c *gin.Context) {
	snap := s.m.Snapshot()
	states := make(map[string]int, len(snap.States))
	for st, n := range snap.States {
		states[st.String()] = n
	}
	c.JSON(http.StatusOK, statsResponse{
		Tiles:      snap.Tiles,
		Levels:     snap.Levels,
		States:     states,
		QueueDepth: s.opts.Pending(),
	})
}

func (s *Server) listTiles(c *gin.Context) {
	maxZoom := coord.MaxZoom
	if v := c.Query("max_zoom"); v != "" {
		z, err := strconv.Atoi(v)
		if err != nil || z < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_zoom should be a non-negative integer"})
			return
		}
		maxZoom = z
	}

	proj := s.m.Projection()
	entries := []tileEntry{}
	for t := range s.m.Tiles(maxZoom) {
		entries = append(entries, tileEntry{
			Key:   t.Key.String(),
			Z:     t.Key.Zoom,
			X:     t.Key.X,
			Y:     t.Key.Y,
			State: t.State().String(),
			Bound: tileBound(proj, t.Key),
		})
	}
	c.JSON(http.StatusOK, gin.H{"tiles": entries, "count": len(entries)})
}

func (s *Server) tileImage(c *gin.Context) {
	key, ok := parseKey(c)
	if !ok {
		return
	}

	t, found := s.m.Tile(key)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "tile not cached", "key": key.String()})
		return
	}

	var data []byte
	ready, err := t.View(func(img image.Image) error {
		var err error
		data, err = s.encoder.Encode(img)
		return err
	})
	if err != nil {
		s.log.Error("failed to encode tile", zap.Stringer("tile", key), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode tile"})
		return
	}
	if !ready {
		c.JSON(http.StatusConflict, gin.H{"error": "tile not ready", "key": key.String(), "state": t.State().String()})
		return
	}
	c.Data(http.StatusOK, s.encoder.ContentType(), data)
}

func parseKey(c *gin.Context) (tile.Key, bool) {
	var vals [3]int
	for i, name := range []string{"z", "x", "y"} {
		v, err := strconv.Atoi(c.Param(name))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": name + " should be integer"})
			return tile.Key{}, false
		}
		vals[i] = v
	}
	return tile.Key{Zoom: vals[0], X: vals[1], Y: vals[2]}, true
}

// tileBound returns the WGS84 extent of a tile.
func tileBound(proj coord.Projection, k tile.Key) bound {
	if _, ok := proj.(*coord.WebMercator); ok {
		b := coord.KeyBound(k.X, k.Y, k.Zoom)
		return bound{MinLon: b.Min.Lon(), MinLat: b.Min.Lat(), MaxLon: b.Max.Lon(), MaxLat: b.Max.Lat()}
	}
	a := proj.ToGeo(proj.TileOrigin(k.X, k.Y, k.Zoom))
	b := proj.ToGeo(proj.TileOrigin(k.X+1, k.Y+1, k.Zoom))
	return bound{
		MinLon: math.Min(a.Lon, b.Lon),
		MinLat: math.Min(a.Lat, b.Lat),
		MaxLon: math.Max(a.Lon, b.Lon),
		MaxLat: math.Max(a.Lat, b.Lat),
	}
}
