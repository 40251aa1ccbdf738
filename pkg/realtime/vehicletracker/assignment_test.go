package vehicletracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/avlengine/pkg/ctdf"
	"github.com/travigo/avlengine/pkg/schedule/schedtest"
)

func TestAssignmentFilter(t *testing.T) {
	filter, err := NewAssignmentFilter(`assignmentType == "ROUTE_ID" || (source == "GTFS-rt" && assignment matches "^9")`)
	require.NoError(t, err)

	assert.True(t, filter.Ignored(&ctdf.AvlReport{AssignmentID: "R1", AssignmentType: ctdf.AssignmentTypeRouteID}))
	assert.True(t, filter.Ignored(&ctdf.AvlReport{AssignmentID: "901", AssignmentType: ctdf.AssignmentTypeBlockID, Source: "GTFS-rt"}))
	assert.False(t, filter.Ignored(&ctdf.AvlReport{AssignmentID: "901", AssignmentType: ctdf.AssignmentTypeBlockID, Source: "CSV"}))
	assert.False(t, filter.Ignored(&ctdf.AvlReport{}))

	empty, err := NewAssignmentFilter("")
	require.NoError(t, err)
	assert.False(t, empty.Ignored(&ctdf.AvlReport{AssignmentID: "R1", AssignmentType: ctdf.AssignmentTypeRouteID}))

	_, err = NewAssignmentFilter(`assignment +`)
	assert.Error(t, err)

	_, err = NewAssignmentFilter(`assignment`)
	assert.Error(t, err, "expression must be boolean")
}

func TestResolveAssignment(t *testing.T) {
	graph := schedtest.Build(
		schedtest.Options{BlockID: "B1", FirstDepartureSecs: departure},
		schedtest.Options{BlockID: "B2", FirstDepartureSecs: departure + 3600},
		schedtest.Options{BlockID: "B3", RouteID: "R3", North: 2000, FirstDepartureSecs: departure},
	)

	resolve := func(assignmentType ctdf.AssignmentType, id string) []string {
		blocks, err := resolveAssignment(graph, &ctdf.AvlReport{AssignmentType: assignmentType, AssignmentID: id})
		if err != nil {
			return nil
		}
		var ids []string
		for _, block := range blocks {
			ids = append(ids, block.ID)
		}
		return ids
	}

	assert.Equal(t, []string{"B2"}, resolve(ctdf.AssignmentTypeBlockID, "B2"))
	assert.Equal(t, []string{"B3"}, resolve(ctdf.AssignmentTypeTripID, "B3_trip0"))
	assert.ElementsMatch(t, []string{"B1", "B2"}, resolve(ctdf.AssignmentTypeRouteID, "R1"))

	_, err := resolveAssignment(graph, &ctdf.AvlReport{AssignmentType: ctdf.AssignmentTypeBlockID, AssignmentID: "B9"})
	assert.ErrorIs(t, err, ErrUnknownAssignment)
	_, err = resolveAssignment(graph, &ctdf.AvlReport{AssignmentType: ctdf.AssignmentTypeTripID, AssignmentID: "B9_trip0"})
	assert.ErrorIs(t, err, ErrUnknownAssignment)
}

func TestDistanceToBlock(t *testing.T) {
	graph := schedtest.Build(schedtest.Options{BlockID: "B1", FirstDepartureSecs: departure})
	block := graph.Block("B1")

	assert.InDelta(t, 0, distanceToBlock(graph, block, schedtest.LocationOnTrip(graph, "B1_trip0", 2, 100)), 1)
	assert.InDelta(t, 300, distanceToBlock(graph, block, schedtest.Offset(schedtest.Origin, 1000, 300)), 2)
}
