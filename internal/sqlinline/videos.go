package sqlinline

const videoColumns = `id::text, owner_id::text, topic, style, duration_bucket, aspect_ratio, locale,
  script, audio_url, video_url, status, duration, attempt, assembly_ref,
  generating_since, failure_reason, created_at, updated_at`

const QInsertVideo = `--sql 17274d8c-c2cd-4690-8e7d-f32d4ead81e8
insert into videos (
  id, owner_id, topic, style, duration_bucket, aspect_ratio, locale,
  script, audio_url, video_url, status, duration, attempt, assembly_ref,
  failure_reason, created_at, updated_at
) values (
  $1::uuid, $2::uuid, $3::text, $4::text, $5::text, $6::text, $7::text,
  $8::text, $9::text, $10::text, $11::text, $12::int, $13::int, $14::text,
  $15::text, $16::timestamptz, $16::timestamptz
);
`

const QSelectVideoByID = `--sql abea1099-3907-4f81-abbb-ec432c8f72d8
select ` + videoColumns + `
from videos
where id = $1::uuid
limit 1;
`

// QUpdateVideo is a compare-and-swap on status: no row is returned when the
// stored status differs from $2.
const QUpdateVideo = `--sql dd0bf777-e892-4f3b-aeae-aa4e0b568d48
update videos
set status = coalesce($3::text, status),
    script = coalesce($4::text, script),
    audio_url = coalesce($5::text, audio_url),
    video_url = coalesce($6::text, video_url),
    attempt = coalesce($7::int, attempt),
    assembly_ref = coalesce($8::text, assembly_ref),
    generating_since = case when $10::boolean then null else coalesce($9::timestamptz, generating_since) end,
    failure_reason = coalesce($11::text, failure_reason),
    updated_at = now()
where id = $1::uuid
  and status = $2::text
returning ` + videoColumns + `;
`

const QListVideosByOwner = `--sql 61fc2496-b10f-42e1-9dca-9fbfe9e9a294
select ` + videoColumns + `
from videos
where owner_id = $1::uuid
order by created_at desc
limit $2::int;
`

const QListVideosByStatus = `--sql 20c0dcfa-f7b6-4828-8de9-e61beaa857a8
select ` + videoColumns + `
from videos
where status = $1::text
order by updated_at asc
limit $2::int;
`
