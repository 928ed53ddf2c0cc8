package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMembersRoundTrip(t *testing.T) {
	members := []Member{
		{ID: 0, ConsensusEndpoint: "10.0.0.1:9010", ArchiveEndpoint: "10.0.0.1:9020"},
		{ID: 1, ConsensusEndpoint: "10.0.0.2:9010", ArchiveEndpoint: "10.0.0.2:9020"},
		{ID: 2, ConsensusEndpoint: "10.0.0.3:9010", ArchiveEndpoint: "10.0.0.3:9020"},
	}

	raw := FormatMembers(members)
	parsed := ParseMembers(raw)
	assert.Equal(t, members, parsed)
}

func TestParseMembersSkipsMalformedEntries(t *testing.T) {
	raw := "0,10.0.0.1:9010,10.0.0.1:9020; not-an-id,x,y ; 1,10.0.0.2:9010,10.0.0.2:9020; too,few"
	parsed := ParseMembers(raw)
	assert.Equal(t, []Member{
		{ID: 0, ConsensusEndpoint: "10.0.0.1:9010", ArchiveEndpoint: "10.0.0.1:9020"},
		{ID: 1, ConsensusEndpoint: "10.0.0.2:9010", ArchiveEndpoint: "10.0.0.2:9020"},
	}, parsed)
}

func TestParseMembersEmpty(t *testing.T) {
	assert.Nil(t, ParseMembers(""))
}

func TestFindMember(t *testing.T) {
	members := []Member{
		{ID: 0, ConsensusEndpoint: "a"},
		{ID: 1, ConsensusEndpoint: "b"},
	}

	found := FindMember(members, 1)
	if assert.NotNil(t, found) {
		assert.Equal(t, "b", found.ConsensusEndpoint)
	}

	assert.Nil(t, FindMember(members, 99))
}

func TestSnapshotIsConsensusModule(t *testing.T) {
	assert.True(t, Snapshot{ServiceID: ConsensusModuleServiceID}.IsConsensusModule())
	assert.False(t, Snapshot{ServiceID: 0}.IsConsensusModule())
}

func TestEntryTypeString(t *testing.T) {
	assert.Equal(t, "TERM", EntryTypeTerm.String())
	assert.Equal(t, "SNAPSHOT", EntryTypeSnapshot.String())
}
