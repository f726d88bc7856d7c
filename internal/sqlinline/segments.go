package sqlinline

const QInsertJobSegment = `--sql 1e541afc-9c4e-4e66-97b6-4516816e4f87
insert into job_segments (
  id, job_id, segment_index, segment_type, duration_seconds, segment_job_id, metadata, created_at
)
values ($1::uuid, $2::uuid, $3, $4, $5, nullif($6, '')::uuid, $7::jsonb, $8);
`

const QListJobSegments = `--sql 63f05a30-6f09-447b-afd4-426a2d0a7adb
select id::text, job_id::text, segment_index, segment_type, duration_seconds,
       segment_job_id::text, metadata, created_at
from job_segments
where job_id = $1::uuid
order by segment_index asc;
`
